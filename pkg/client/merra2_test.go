package client

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/http/httptest"
	"path"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/planmyfest/weather-backend/internal/dataset"
	"github.com/planmyfest/weather-backend/pkg/dap"
)

const merraFill = 9.999999870e+14

const merraFullDDS = `Dataset {
    Float64 time[time = 2];
    Float64 lat[lat = 2];
    Float64 lon[lon = 2];
    Grid {
     ARRAY:
        Float64 T2M[time = 2][lat = 2][lon = 2];
     MAPS:
        Float64 time[time = 2];
        Float64 lat[lat = 2];
        Float64 lon[lon = 2];
    } T2M;
} MERRA2_400.tavg1_2d_slv_Nx.20230925.nc4;`

const merraGridDDS = `Dataset {
    Grid {
     ARRAY:
        Float64 T2M[time = 2][lat = 1][lon = 1];
     MAPS:
        Float64 time[time = 2];
        Float64 lat[lat = 1];
        Float64 lon[lon = 1];
    } T2M;
} MERRA2_400.tavg1_2d_slv_Nx.20230925.nc4;`

const merraCoordsDDS = `Dataset {
    Float64 lat[lat = 2];
    Float64 lon[lon = 2];
} MERRA2_400.tavg1_2d_slv_Nx.20230925.nc4;`

const merraDASTemplate = `Attributes {
    T2M {
        Float32 _FillValue 9.999999870e+14;
    }
    time {
        String units "minutes since %s 00:30:00";
    }
}`

func xdrCounts(buf *bytes.Buffer, n int) {
	binary.Write(buf, binary.BigEndian, uint32(n))
	binary.Write(buf, binary.BigEndian, uint32(n))
}

func xdrFloats(buf *bytes.Buffer, values ...float64) {
	for _, v := range values {
		binary.Write(buf, binary.BigEndian, v)
	}
}

func merraCoordsBody() []byte {
	var buf bytes.Buffer
	buf.WriteString(merraCoordsDDS)
	buf.WriteString("\nData:\n")
	xdrCounts(&buf, 2)
	xdrFloats(&buf, 38.5, 39.0)
	xdrCounts(&buf, 2)
	xdrFloats(&buf, -77.5, -77.0)
	return buf.Bytes()
}

func merraDayBody(v0, v1 float64) []byte {
	var buf bytes.Buffer
	buf.WriteString(merraGridDDS)
	buf.WriteString("\nData:\n")
	xdrCounts(&buf, 2)
	xdrFloats(&buf, v0, v1)
	xdrCounts(&buf, 2)
	xdrFloats(&buf, 0, 60)
	xdrCounts(&buf, 1)
	xdrFloats(&buf, 39.0)
	xdrCounts(&buf, 1)
	xdrFloats(&buf, -77.0)
	return buf.Bytes()
}

// merraTestServer serves a two-day slice of the collection: a 2x2 grid with
// two hourly steps per file and a fill value on the last sample of the
// second day.
func merraTestServer(t *testing.T) *httptest.Server {
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasPrefix(r.URL.Path, "/opendap/MERRA2/M2T1NXSLV.5.12.4/2023/09/") {
			t.Errorf("unexpected path %q", r.URL.Path)
			http.NotFound(w, r)
			return
		}
		day := strings.Split(path.Base(r.URL.Path), ".")[2]
		date := day[:4] + "-" + day[4:6] + "-" + day[6:]

		switch {
		case strings.HasSuffix(r.URL.Path, ".dds"):
			io.WriteString(w, merraFullDDS)
		case strings.HasSuffix(r.URL.Path, ".das"):
			fmt.Fprintf(w, merraDASTemplate, date)
		case strings.HasSuffix(r.URL.Path, ".dods"):
			switch r.URL.RawQuery {
			case "lat,lon":
				w.Write(merraCoordsBody())
			case "T2M[0:1][1][1]":
				if day == "20230925" {
					w.Write(merraDayBody(20.5, 21.5))
				} else {
					w.Write(merraDayBody(22.5, merraFill))
				}
			default:
				t.Errorf("unexpected constraint %q", r.URL.RawQuery)
				http.Error(w, "bad constraint", http.StatusBadRequest)
			}
		default:
			t.Errorf("unexpected request %q", r.URL.Path)
			http.NotFound(w, r)
		}
	}))
}

func TestMerra2Client_Fetch(t *testing.T) {
	srv := merraTestServer(t)
	defer srv.Close()

	c := NewMerra2Client(Merra2Config{
		BaseURL:    srv.URL,
		HTTPClient: srv.Client(),
	}, zap.NewNop())

	ds, err := c.Fetch(context.Background(), dataset.Query{
		Location: dataset.Location{Latitude: 38.9, Longitude: -77.0},
		Start:    time.Date(2023, 9, 25, 0, 0, 0, 0, time.UTC),
		End:      time.Date(2023, 9, 26, 0, 0, 0, 0, time.UTC),
		Variables: []dataset.Variable{
			dataset.VarTemperature,
			dataset.VarWindSpeed,
			dataset.VarPrecipitation,
		},
	})
	if err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}

	if len(ds.Times) != 4 {
		t.Fatalf("len(Times) = %d, want 4", len(ds.Times))
	}
	wantTimes := []time.Time{
		time.Date(2023, 9, 25, 0, 30, 0, 0, time.UTC),
		time.Date(2023, 9, 25, 1, 30, 0, 0, time.UTC),
		time.Date(2023, 9, 26, 0, 30, 0, 0, time.UTC),
		time.Date(2023, 9, 26, 1, 30, 0, 0, time.UTC),
	}
	for i, want := range wantTimes {
		if !ds.Times[i].Equal(want) {
			t.Errorf("Times[%d] = %v, want %v", i, ds.Times[i], want)
		}
	}

	t2m := ds.Series[dataset.VarTemperature]
	if t2m == nil {
		t.Fatal("missing T2M series")
	}
	for i, want := range []float64{20.5, 21.5, 22.5} {
		if t2m[i] != want {
			t.Errorf("T2M[%d] = %v, want %v", i, t2m[i], want)
		}
	}
	if !math.IsNaN(t2m[3]) {
		t.Errorf("T2M[3] = %v, want NaN for fill value", t2m[3])
	}

	if _, ok := ds.Series[dataset.VarWindSpeed]; ok {
		t.Error("WS10M column present, the collection does not serve it")
	}
	if _, ok := ds.Series[dataset.VarPrecipitation]; ok {
		t.Error("PRECTOTCORR column present, want it dropped when missing from the descriptor")
	}

	if ds.Meta.Source != "MERRA-2 M2T1NXSLV.5.12.4" {
		t.Errorf("Source = %q, want %q", ds.Meta.Source, "MERRA-2 M2T1NXSLV.5.12.4")
	}
	if ds.Meta.AccessMethod != "NASA GES DISC OPeNDAP" {
		t.Errorf("AccessMethod = %q, want %q", ds.Meta.AccessMethod, "NASA GES DISC OPeNDAP")
	}
}

func TestMerra2Client_RangeTooLarge(t *testing.T) {
	c := NewMerra2Client(Merra2Config{}, zap.NewNop())
	_, err := c.Fetch(context.Background(), dataset.Query{
		Location:  dataset.Location{Latitude: 0, Longitude: 0},
		Start:     time.Date(2023, 9, 1, 0, 0, 0, 0, time.UTC),
		End:       time.Date(2023, 9, 10, 0, 0, 0, 0, time.UTC),
		Variables: []dataset.Variable{dataset.VarTemperature},
	})
	if !errors.Is(err, ErrRangeTooLarge) {
		t.Fatalf("Fetch error = %v, want ErrRangeTooLarge", err)
	}
}

func TestMerra2Client_NoMerraVariables(t *testing.T) {
	c := NewMerra2Client(Merra2Config{}, zap.NewNop())
	_, err := c.Fetch(context.Background(), dataset.Query{
		Location:  dataset.Location{Latitude: 0, Longitude: 0},
		Start:     time.Date(2023, 9, 1, 0, 0, 0, 0, time.UTC),
		End:       time.Date(2023, 9, 1, 0, 0, 0, 0, time.UTC),
		Variables: []dataset.Variable{dataset.VarWindSpeed},
	})
	if !errors.Is(err, ErrNoData) {
		t.Fatalf("Fetch error = %v, want ErrNoData", err)
	}
}

func TestMerra2Client_MissingCredentials(t *testing.T) {
	t.Setenv("EARTHDATA_USERNAME", "")
	t.Setenv("EARTHDATA_PASSWORD", "")

	c := NewMerra2Client(Merra2Config{
		NetrcPath: filepath.Join(t.TempDir(), "netrc"),
	}, zap.NewNop())
	_, err := c.Fetch(context.Background(), dataset.Query{
		Location:  dataset.Location{Latitude: 0, Longitude: 0},
		Start:     time.Date(2023, 9, 1, 0, 0, 0, 0, time.UTC),
		End:       time.Date(2023, 9, 1, 0, 0, 0, 0, time.UTC),
		Variables: []dataset.Variable{dataset.VarTemperature},
	})
	if !errors.Is(err, dap.ErrMissingCredentials) {
		t.Fatalf("Fetch error = %v, want ErrMissingCredentials", err)
	}
}

func TestMerraStream(t *testing.T) {
	cases := []struct {
		year int
		want string
	}{
		{1980, "100"},
		{1991, "100"},
		{1992, "200"},
		{2000, "200"},
		{2001, "300"},
		{2010, "300"},
		{2011, "400"},
		{2024, "400"},
	}
	for _, tc := range cases {
		if got := merraStream(tc.year); got != tc.want {
			t.Errorf("merraStream(%d) = %q, want %q", tc.year, got, tc.want)
		}
	}
}

func TestMerra2Client_FileURL(t *testing.T) {
	c := NewMerra2Client(Merra2Config{BaseURL: "https://example.org"}, zap.NewNop())
	got := c.fileURL(time.Date(2023, 9, 25, 0, 0, 0, 0, time.UTC))
	want := "https://example.org/opendap/MERRA2/M2T1NXSLV.5.12.4/2023/09/MERRA2_400.tavg1_2d_slv_Nx.20230925.nc4"
	if got != want {
		t.Errorf("fileURL = %q, want %q", got, want)
	}
}

func TestNearestIndex(t *testing.T) {
	axis := []float64{-90, -45, 0, 45, 90}
	cases := []struct {
		target float64
		want   int
	}{
		{40, 3},
		{-90, 0},
		{100, 4},
		{10, 2},
	}
	for _, tc := range cases {
		got, err := nearestIndex(axis, tc.target)
		if err != nil {
			t.Fatalf("nearestIndex(%v) failed: %v", tc.target, err)
		}
		if got != tc.want {
			t.Errorf("nearestIndex(%v) = %d, want %d", tc.target, got, tc.want)
		}
	}

	if _, err := nearestIndex(nil, 0); err == nil {
		t.Error("nearestIndex(nil) succeeded, want error")
	}
}

func TestDayTimestamps_Fallback(t *testing.T) {
	day := time.Date(2023, 9, 25, 0, 0, 0, 0, time.UTC)
	stamps := dayTimestamps(nil, nil, day, 3)
	want := []time.Time{
		time.Date(2023, 9, 25, 0, 30, 0, 0, time.UTC),
		time.Date(2023, 9, 25, 1, 30, 0, 0, time.UTC),
		time.Date(2023, 9, 25, 2, 30, 0, 0, time.UTC),
	}
	for i := range want {
		if !stamps[i].Equal(want[i]) {
			t.Errorf("stamps[%d] = %v, want %v", i, stamps[i], want[i])
		}
	}
}
