package services

import (
	"cmp"
	"slices"

	"github.com/samber/lo"
	"video-relay-go/models"
	"video-relay-go/utils"
)

// AutoQuality labels playable encodings that carry no quality label
const AutoQuality = "Auto"

// BuildCatalog turns the raw encoding list into display-ready options:
// video+audio only, one entry per quality label (first listing wins),
// highest quality first. Labels without a number sort last in source order.
func BuildCatalog(encodings []models.RawEncoding) models.Catalog {
	playable := lo.Filter(encodings, func(enc models.RawEncoding, _ int) bool {
		return enc.HasVideo && enc.HasAudio
	})

	unique := lo.UniqBy(playable, qualityLabel)

	slices.SortStableFunc(unique, func(a, b models.RawEncoding) int {
		return cmp.Compare(utils.ParseQuality(qualityLabel(b)), utils.ParseQuality(qualityLabel(a)))
	})

	return lo.Map(unique, func(enc models.RawEncoding, _ int) models.CatalogEntry {
		return models.CatalogEntry{
			Quality:   qualityLabel(enc),
			Selector:  enc.Selector,
			Container: enc.Container,
			FileSize:  utils.FormatSize(enc.ContentLength),
		}
	})
}

func qualityLabel(enc models.RawEncoding) string {
	if enc.QualityLabel == "" {
		return AutoQuality
	}
	return enc.QualityLabel
}

// FindEncoding returns the encoding named by selector, or nil
func FindEncoding(meta *models.VideoMetadata, selector string) *models.RawEncoding {
	for i := range meta.Encodings {
		if meta.Encodings[i].Selector == selector {
			return &meta.Encodings[i]
		}
	}
	return nil
}

// DefaultEncoding is the head of the catalog: the highest quality encoding
// with both video and audio. Nil when there is none.
func DefaultEncoding(meta *models.VideoMetadata) *models.RawEncoding {
	catalog := BuildCatalog(meta.Encodings)
	if len(catalog) == 0 {
		return nil
	}
	return FindEncoding(meta, catalog[0].Selector)
}
