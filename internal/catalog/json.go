package catalog

import (
	"encoding/json"
	"errors"
)

type jsonDoc struct {
	SavedMedia *[]jsonItem `json:"Saved Media"`
}

type jsonItem struct {
	Date        string `json:"Date"`
	MediaURL    string `json:"Media Download Url"`
	DownloadURL string `json:"Download Link"`
	MediaType   string `json:"Media Type"`
	Location    string `json:"Location"`
}

// ParseJSON 解析 memories_history.json（顶层键 "Saved Media"）。
func ParseJSON(b []byte) (*Catalog, error) {
	var doc jsonDoc
	if err := json.Unmarshal(b, &doc); err != nil {
		return nil, err
	}
	if doc.SavedMedia == nil {
		return nil, errors.New(`缺少顶层键 "Saved Media"`)
	}

	c := &Catalog{Format: FormatJSON}
	for i, it := range *doc.SavedMedia {
		c.add(i+1, rawRecord{
			Date:     it.Date,
			Primary:  it.MediaURL,
			Fallback: it.DownloadURL,
			Kind:     it.MediaType,
			Location: it.Location,
		})
	}
	return c, nil
}
