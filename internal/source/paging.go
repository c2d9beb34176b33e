package source

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/sells-group/medintel/internal/fetcher"
	"github.com/sells-group/medintel/internal/model"
	"github.com/sells-group/medintel/internal/resilience"
)

// fetchPrimary pages through the primary API: a small first page, then
// full pages, until a short page, the record cap, or a failed page. Records
// gathered before a failure are kept.
func (f *Fetcher) fetchPrimary(ctx context.Context, ep Endpoint, dt model.DatasetType, entityID string, year int, cls model.SourceType, meta *model.FetchMetadata) []model.Record {
	id := ep.DatasetIDs[year]
	if id == "" || ep.PrimaryURL == "" {
		meta.Warn(fmt.Sprintf("no primary dataset configured for %s in %d", dt, year))
		return nil
	}

	log := zap.L().With(
		zap.String("dataset", string(dt)),
		zap.String("entity", entityID),
		zap.Int("year", year),
	)
	schema := Schemas[dt]
	breaker := f.breakers.Get(string(dt) + ":primary")
	pacer := rate.NewLimiter(rate.Every(f.opts.PageDelay), 1)
	if f.opts.PageDelay == 0 {
		pacer = rate.NewLimiter(rate.Inf, 1)
	}

	var out []model.Record
	offset := 0
	size := f.opts.FirstPageSize
	for page := 1; len(out) < f.opts.MaxRecords; page++ {
		if err := pacer.Wait(ctx); err != nil {
			meta.Warn(fmt.Sprintf("page %d: %v", page, err))
			break
		}
		if !breaker.Allow() {
			meta.Warn(fmt.Sprintf("primary %s endpoint unavailable (circuit open); skipped from page %d", dt, page))
			break
		}

		// Near the cap, ask for one row beyond it so a full page means more
		// data exists and a short page means the dataset ended.
		batch := min(size, f.opts.MaxRecords-len(out)+1)
		retry := f.opts.Retry
		retry.OnRetry = func(attempt int, err error) {
			batch = max(1, batch/2)
			log.Warn("retrying page with smaller batch",
				zap.Int("page", page),
				zap.Int("offset", offset),
				zap.Int("size", batch),
				zap.Int("attempt", attempt),
				zap.Error(err),
			)
		}

		rows, err := resilience.DoVal(ctx, retry, func(ctx context.Context) ([]fetcher.Row, error) {
			meta.RequestCount++
			rows, err := f.client.FetchRows(ctx, primaryURL(ep, id, entityID, offset, batch))
			breaker.Record(err)
			if err == nil {
				meta.SuccessCount++
			}
			return rows, err
		})
		if err != nil {
			meta.Warn(fmt.Sprintf("page %d (offset %d) failed: %v; keeping %d records", page, offset, err, len(out)))
			log.Warn("page failed; stopping pagination",
				zap.Int("page", page),
				zap.Int("offset", offset),
				zap.Int("kept", len(out)),
				zap.Error(err),
			)
			break
		}

		out = append(out, f.normalizePage(rows, schema, entityID, year, cls, fmt.Sprintf("page %d", page), false, meta)...)
		offset += len(rows)
		if len(rows) < batch {
			break
		}
		if len(out) >= f.opts.MaxRecords {
			out = out[:f.opts.MaxRecords]
			meta.Warn(fmt.Sprintf("record cap of %d reached; remaining pages not fetched", f.opts.MaxRecords))
			break
		}
		size = f.opts.PageSize
	}
	return out
}

// fetchFallback issues exactly one request against the secondary API.
func (f *Fetcher) fetchFallback(ctx context.Context, ep Endpoint, dt model.DatasetType, entityID string, year int, cls model.SourceType, meta *model.FetchMetadata) []model.Record {
	if ep.FallbackURL == "" {
		meta.Warn(fmt.Sprintf("no fallback source configured for %s", dt))
		return nil
	}
	if strings.Contains(ep.FallbackURL, "{id}") && ep.DatasetIDs[year] == "" {
		meta.Warn(fmt.Sprintf("no fallback dataset configured for %s in %d", dt, year))
		return nil
	}
	breaker := f.breakers.Get(string(dt) + ":fallback")
	if !breaker.Allow() {
		meta.Warn(fmt.Sprintf("fallback %s endpoint unavailable (circuit open)", dt))
		return nil
	}

	meta.RequestCount++
	rows, err := f.client.FetchRows(ctx, fallbackURL(ep, entityID, year, f.opts.MaxRecords))
	breaker.Record(err)
	if err != nil {
		meta.Warn(fmt.Sprintf("fallback request failed: %v", err))
		zap.L().Warn("fallback request failed",
			zap.String("dataset", string(dt)),
			zap.String("entity", entityID),
			zap.Int("year", year),
			zap.Error(err),
		)
		return nil
	}
	meta.SuccessCount++

	recs := f.normalizePage(rows, Schemas[dt], entityID, year, cls, "fallback", true, meta)
	if len(recs) > 0 {
		meta.Warn(fmt.Sprintf("primary source returned no records; %d records from fallback source", len(recs)))
	}
	if len(recs) > f.opts.MaxRecords {
		recs = recs[:f.opts.MaxRecords]
	}
	return recs
}

// normalizePage resolves columns for the batch once, builds records, and
// turns any dropped rows into warnings.
func (f *Fetcher) normalizePage(rows []fetcher.Row, schema Schema, entityID string, year int, cls model.SourceType, label string, matchTarget bool, meta *model.FetchMetadata) []model.Record {
	if len(rows) == 0 {
		return nil
	}
	cols := schema.resolveColumns(rows)
	if !cols.usable() {
		meta.Warn(fmt.Sprintf("%s: none of the expected volume/cost fields present (tried %s / %s); %d rows skipped",
			label,
			strings.Join(schema.Volume, ","),
			strings.Join(append(append([]string{}, schema.UnitCost...), schema.Spend...), ","),
			len(rows),
		))
		return nil
	}

	recs, st := normalizeBatch(rows, cols, entityID, year, cls, matchTarget)
	if st.negative > 0 {
		meta.Warn(fmt.Sprintf("%s: dropped %d records with negative volume or unit cost", label, st.negative))
	}
	if st.unparseable > 0 {
		meta.Warn(fmt.Sprintf("%s: dropped %d records with missing or non-numeric values", label, st.unparseable))
	}
	if st.spendNoVolume > 0 {
		meta.Warn(fmt.Sprintf("%s: dropped %d records reporting spend with zero volume", label, st.spendNoVolume))
	}
	if st.offTarget > 0 {
		zap.L().Debug("ignored rows for other entities or years",
			zap.String("page", label),
			zap.Int("rows", st.offTarget),
		)
	}
	return recs
}

func primaryURL(ep Endpoint, datasetID, entityID string, offset, size int) string {
	raw := strings.ReplaceAll(ep.PrimaryURL, "{id}", url.PathEscape(datasetID))
	return withQuery(raw, map[string]string{
		"filter[" + ep.FilterField + "]": entityID,
		"offset":                         strconv.Itoa(offset),
		"size":                           strconv.Itoa(size),
	})
}

func fallbackURL(ep Endpoint, entityID string, year, size int) string {
	raw := strings.ReplaceAll(ep.FallbackURL, "{year}", strconv.Itoa(year))
	raw = strings.ReplaceAll(raw, "{id}", url.PathEscape(ep.DatasetIDs[year]))
	param := ep.FallbackParam
	if param == "" {
		param = "keyword"
	}
	return withQuery(raw, map[string]string{
		param:  entityID,
		"size": strconv.Itoa(size),
	})
}

func withQuery(raw string, params map[string]string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return raw
	}
	q := u.Query()
	for k, v := range params {
		q.Set(k, v)
	}
	u.RawQuery = q.Encode()
	return u.String()
}
