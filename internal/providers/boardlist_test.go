package providers

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func boardPage(title, body string) string {
	return `<html><head><title>` + title + `</title></head><body>` +
		`<h2>` + title + `</h2> Date: 2026-02-24 08:37:00 <br>` +
		`<div id="userbody">` + body +
		` <ul><li> Location: Northwest Ohio <li>` + redistribGrant + `</ul></div>` +
		`</body></html>`
}

func boardCache(lines ...string) []byte {
	return []byte(strings.Join(lines, "\n") + "\n")
}

func TestBoardListParse(t *testing.T) {
	t.Parallel()

	cache := boardCache(
		"http://lima.board.example.org/vol/1048151556.html-Q-"+
			boardPage("Foster Parents Needed", "Foster parent training is offered; please call Stacy for details."),
		"http://lima.board.example.org/vol/2000000001.html-Q-"+
			boardPage("Short Body", "too short"),
		"http://lima.board.example.org/vol/2000000002.html-Q-"+
			boardPage("", "This page has a perfectly long body but no title at all."),
		"not a cache line",
	)

	p := &BoardList{
		Logger: zap.NewNop(),
		Now:    testNow,
		MetroLatLngs: map[string]string{
			"http://lima.board.example.org/": "40.7427,-84.1052",
		},
	}
	out, stats, err := p.Parse(cache, 0, false)
	require.NoError(t, err)
	require.Equal(t, 1, stats.Organizations)
	require.Equal(t, 1, stats.Opportunities)
	require.Equal(t, 2, stats.Skipped)
	orgsBeforeOpps(t, out)

	// Boards carry no organizations; everything hangs off the
	// synthetic one.
	require.Equal(t, "0", out.Organizations[0].ID)

	opp := out.Opportunities[0]
	require.Equal(t, "1048151556", opp.ID)
	require.Equal(t, "Foster Parents Needed", opp.Title)
	require.Equal(t, "http://lima.board.example.org/vol/1048151556.html", opp.DetailURL)
	require.Contains(t, opp.Description, "Foster parent training")

	loc := opp.Locations[0]
	require.Equal(t, "Northwest Ohio", loc.Name)
	require.Equal(t, "40.7427", loc.Latitude)
	require.Equal(t, "-84.1052", loc.Longitude)

	require.Equal(t, "2026-02-24", opp.Durations[0].StartDate)
	require.Equal(t, "2026-02-24T08:37:00", opp.LastUpdated.Value)
}

func TestBoardListSkipsWithoutRedistribGrant(t *testing.T) {
	t.Parallel()

	page := `<html><head><title>No Grant</title></head><body>` +
		`<div id="userbody">A long enough body, but the poster never granted redistribution.</div></body></html>`
	cache := boardCache("http://x.board.example.org/vol/42.html-Q-" + page)

	p := &BoardList{Logger: zap.NewNop(), Now: testNow}
	_, stats, err := p.Parse(cache, 0, false)
	require.NoError(t, err)
	require.Equal(t, 0, stats.Opportunities)
	require.Equal(t, 1, stats.Skipped)
}

func TestBoardListEmptyCache(t *testing.T) {
	t.Parallel()

	p := &BoardList{Logger: zap.NewNop(), Now: testNow}
	_, _, err := p.Parse(nil, 0, false)
	require.Error(t, err)
}

func TestLoadMetroLatLngs(t *testing.T) {
	t.Parallel()

	table := []byte(`# comment line
http://lima.board.example.org/|40.7427|-84.1052

http://sf.board.example.org/|37.7749|-122.4194  # inline comment
`)
	got, err := LoadMetroLatLngs(table)
	require.NoError(t, err)
	require.Len(t, got, 2)
	require.Equal(t, "40.7427,-84.1052", got["http://lima.board.example.org/"])

	_, err = LoadMetroLatLngs([]byte("only|two\n"))
	require.Error(t, err)
}
