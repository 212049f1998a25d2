package catalog

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/John-Robertt/memmig/internal/domain"
)

const sampleJSON = `{
  "Saved Media": [
    {
      "Date": "2023-06-01 12:30:45 UTC",
      "Media Type": "Image",
      "Location": "Latitude, Longitude: 40.420906, -74.528625",
      "Download Link": "https://fallback.test/a?x=1",
      "Media Download Url": "https://primary.test/a?x=1"
    },
    {
      "Date": "2023-06-02 08:00:00 UTC",
      "Media Type": "Video",
      "Media Download Url": "https://primary.test/b"
    },
    { "Media Type": "Image", "Media Download Url": "https://primary.test/c" },
    { "Date": "2023-06-03 08:00:00 UTC", "Media Type": "Image" },
    { "Date": "03/06/2023", "Media Download Url": "https://primary.test/d" }
  ]
}`

func write(t *testing.T, name, content string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
	return p
}

func TestLoad_JSON(t *testing.T) {
	c, err := Load(write(t, "memories_history.json", sampleJSON))
	require.NoError(t, err)
	assert.Equal(t, FormatJSON, c.Format)
	assert.Equal(t, 5, c.Len())

	require.Len(t, c.Records, 2)
	r := c.Records[0]
	assert.Equal(t, 1, r.Index)
	assert.Equal(t, time.Date(2023, 6, 1, 12, 30, 45, 0, time.UTC), r.Timestamp)
	assert.Equal(t, "https://primary.test/a?x=1", r.PrimaryURL)
	assert.Equal(t, "https://fallback.test/a?x=1", r.FallbackURL)
	assert.Equal(t, domain.KindPhoto, r.Kind)
	assert.Equal(t, "Latitude, Longitude: 40.420906, -74.528625", r.Location)

	assert.Equal(t, domain.KindVideo, c.Records[1].Kind)
	assert.Equal(t, 2, c.Records[1].Index)

	require.Len(t, c.Invalid, 3)
	assert.Equal(t, []int{3, 4, 5}, []int{c.Invalid[0].Index, c.Invalid[1].Index, c.Invalid[2].Index})
	for _, inv := range c.Invalid {
		assert.NotEmpty(t, inv.Reason)
	}
}

func TestLoad_JSONMissingKey(t *testing.T) {
	_, err := Load(write(t, "x.json", `{"Other": []}`))
	require.Error(t, err)
	var ce *Error
	assert.True(t, errors.As(err, &ce))
}

func TestLoad_JSONMalformed(t *testing.T) {
	_, err := Load(write(t, "x.json", `{"Saved Media": [`))
	assert.Error(t, err)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.json"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, os.ErrNotExist))
}

const sampleHTML = `<html><body>
<table>
  <tr><th>Date</th><th>Media Type</th><th>Location</th><th></th></tr>
  <tr>
    <td>2023-06-01 12:30:45 UTC</td>
    <td>Image</td>
    <td>Latitude, Longitude: 40.420906, -74.528625</td>
    <td><a href="#" onclick="downloadMemories('https://primary.test/a?uid=1&amp;sig=2', this, true); return false;">Download</a></td>
  </tr>
  <tr>
    <td>2023-06-02 08:00:00 UTC</td>
    <td>Video</td>
    <td></td>
    <td><a href="https://primary.test/b">Download</a></td>
  </tr>
  <tr>
    <td>2023-06-03 08:00:00 UTC</td>
    <td>Image</td>
    <td></td>
    <td><a href="#">Download</a></td>
  </tr>
</table>
</body></html>`

func TestLoad_HTML(t *testing.T) {
	c, err := Load(write(t, "memories_history.html", sampleHTML))
	require.NoError(t, err)
	assert.Equal(t, FormatHTML, c.Format)
	assert.Equal(t, 3, c.Len())

	require.Len(t, c.Records, 2)
	assert.Equal(t, "https://primary.test/a?uid=1&sig=2", c.Records[0].PrimaryURL)
	assert.Equal(t, "Latitude, Longitude: 40.420906, -74.528625", c.Records[0].Location)
	assert.Empty(t, c.Records[0].FallbackURL)
	assert.Equal(t, domain.KindVideo, c.Records[1].Kind)
	assert.Equal(t, "https://primary.test/b", c.Records[1].PrimaryURL)

	require.Len(t, c.Invalid, 1)
	assert.Equal(t, 3, c.Invalid[0].Index)
}

func TestLoad_HTMLWithoutRows(t *testing.T) {
	_, err := Load(write(t, "x.html", `<html><body><p>nothing</p></body></html>`))
	assert.Error(t, err)
}

func TestDetectFormat_ByContent(t *testing.T) {
	assert.Equal(t, FormatJSON, detectFormat("export.txt", []byte("  {\"Saved Media\": []}")))
	assert.Equal(t, FormatHTML, detectFormat("export.txt", []byte("<html></html>")))
}
