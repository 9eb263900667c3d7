package orchestrator

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/JakeFAU/carcatalog-crawler/internal/crawler"
	"github.com/JakeFAU/carcatalog-crawler/internal/progress"
)

var errNoImages = errors.New("gallery yielded no images")

// processModel turns one fetched model page into a persisted record. It
// returns done=false when the item failed; err is reserved for checkpoint
// failures.
func (o *Orchestrator) processModel(ctx context.Context, item crawler.WorkItem, body []byte) (bool, error) {
	detail, err := o.deps.Extractor.ParseDetail(body, item.URL)
	if err != nil {
		o.archive(ctx, item, body)
		o.fail(item, ReasonParse, err)
		return false, nil
	}

	images, err := o.gallery(ctx, item, detail.GalleryURL)
	if err != nil {
		o.fail(item, ReasonGallery, err)
		return false, nil
	}

	key := crawler.NewModelKey(detail.Make, detail.Model, o.cfg.MakeAliases)
	incoming := crawler.ModelRecord{
		Make:  key.Make,
		Model: key.Model,
		Years: make(map[string]crawler.YearRecord, len(detail.Years)),
	}
	for _, year := range detail.Years {
		yr := crawler.YearRecord{
			MainImages:   images,
			ExpertReview: detail.Review,
			Trims:        detail.Trims,
			SourceURL:    item.URL,
			Category:     item.Category,
			Subcategory:  item.Subcategory,
		}
		incoming.Years[year] = yr.Clone()
	}

	existing, err := o.deps.Records.Read(ctx, key)
	if err != nil {
		o.fail(item, ReasonRead, err)
		return false, nil
	}
	merged := o.deps.Merger.Merge(existing, incoming)

	result := o.deps.Validator.Validate(merged)
	if !result.OK {
		o.update(func(s *Summary) { s.ValidationWarnings++ })
		o.emit(progress.Event{Stage: progress.StageItemInvalid, Kind: string(item.Kind), URL: item.URL})
		o.logger.Warn("record failed validation, not persisted",
			zap.String("url", item.URL),
			zap.String("kind", string(item.Kind)),
			zap.String("state", "invalid"),
			zap.String("record", key.String()),
			zap.Strings("missing_fields", result.MissingFields),
		)
		return true, o.markDone(ctx, item, nil)
	}
	if len(result.Warnings) > 0 {
		o.logger.Debug("record warnings", zap.String("record", key.String()), zap.Strings("warnings", result.Warnings))
	}

	if err := o.deps.Records.Write(ctx, merged); err != nil {
		o.fail(item, ReasonPersist, err)
		return false, nil
	}
	o.update(func(s *Summary) { s.Persisted++ })
	o.logger.Info("record persisted",
		zap.String("url", item.URL),
		zap.String("record", key.String()),
		zap.Int("years", len(merged.Years)),
		zap.Int("images", len(images)),
	)
	o.notify(ctx, merged, item)

	if err := o.markDone(ctx, item, nil); err != nil {
		return false, err
	}
	return true, nil
}

// gallery fetches the image gallery. A missing gallery (4xx) or one with no
// parsable images leaves the record without images; other fetch failures fail
// the item so a later run retries it.
func (o *Orchestrator) gallery(ctx context.Context, item crawler.WorkItem, galleryURL string) ([]string, error) {
	if galleryURL == "" {
		return nil, nil
	}
	res, err := o.deps.Fetcher.Fetch(ctx, galleryURL)
	if err != nil {
		if crawler.IsFetchKind(err, crawler.FetchClientError) {
			o.logger.Warn("gallery unavailable", zap.String("url", item.URL), zap.String("gallery", galleryURL), zap.Error(err))
			return nil, nil
		}
		return nil, err
	}
	entries, err := o.deps.Extractor.ParseGallery(res.Body, galleryURL)
	if err != nil {
		o.logger.Warn("gallery parse failed", zap.String("url", item.URL), zap.String("gallery", galleryURL), zap.Error(err))
		return nil, nil
	}
	images := make([]string, 0, len(entries))
	for _, e := range entries {
		images = append(images, e.URL)
	}
	if len(images) == 0 {
		o.logger.Warn("gallery parse failed", zap.String("url", item.URL), zap.Error(errNoImages))
		return nil, nil
	}
	return images, nil
}

func (o *Orchestrator) notify(ctx context.Context, rec crawler.ModelRecord, item crawler.WorkItem) {
	if o.deps.Notifier == nil {
		return
	}
	event := crawler.RecordEvent{
		RunID:       o.cfg.RunID,
		Make:        rec.Make,
		Model:       rec.Model,
		Years:       rec.SortedYears(),
		SourceURL:   item.URL,
		PersistedAt: o.deps.Clock.Now().UTC(),
	}
	if err := o.deps.Notifier.Publish(ctx, event); err != nil {
		o.logger.Warn("record notification failed", zap.String("record", rec.Key().String()), zap.Error(err))
	}
}
