package scraper

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"firewatch/internal/dbexec"
	"firewatch/internal/logging"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const insertFire = "INSERT INTO fire (latitude,longitude,confidence,temperature,user_submitted,date_acquired) VALUES (?,?,?,?,?,?)"

const feed = `latitude,longitude,bright_ti4,scan,track,acq_date,acq_time,satellite,confidence,version,bright_ti5,frp,daynight
-12.5,130.25,330.1,0.4,0.37,2024-07-01,342,N,nominal,2.0NRT,290.5,5.2,D
10.0,20.0,301.7,0.4,0.4,01/07/2024,0100,N,high,2.0NRT,280.1,1.1,N
1.0,2.0,3.0
45.1,7.2,310.0,0.5,0.4,2024-01-15,2359,N,low,2.0NRT,270.0,0.9,N
`

func newScraper(t *testing.T, url string) (*Scraper, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherEqual))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	s, err := New(Config{URL: url, Timeout: 5 * time.Second}, dbexec.NewStandardExecutor(db), logging.NewNop(), nil)
	require.NoError(t, err)
	s.now = func() time.Time { return time.Date(2024, 7, 2, 12, 0, 0, 0, time.UTC) }
	return s, mock
}

func TestScraperRun(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(feed))
	}))
	defer srv.Close()

	s, mock := newScraper(t, srv.URL)
	mock.ExpectExec(insertFire).
		WithArgs(-12.5, 130.25, 60, "330.1", 0, "2024-07-01 04:42:00").
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec(insertFire).
		WithArgs(10.0, 20.0, 90, "301.7", 0, "2024-07-02 13:00:00").
		WillReturnResult(sqlmock.NewResult(2, 1))
	mock.ExpectExec(insertFire).
		WithArgs(45.1, 7.2, 30, "310.0", 0, "2024-01-15 23:59:00").
		WillReturnError(errors.New("duplicate"))

	res, err := s.Run(context.Background(), "test")
	require.NoError(t, err)
	assert.Equal(t, Result{SuccessCount: 2, FailureCount: 2}, res)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestScraperUpstreamFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "gone", http.StatusNotFound)
	}))
	defer srv.Close()

	s, mock := newScraper(t, srv.URL)
	_, err := s.Run(context.Background(), "test")
	var upstream *UpstreamError
	require.ErrorAs(t, err, &upstream)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestScraperEmptyFeed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	defer srv.Close()

	s, _ := newScraper(t, srv.URL)
	res, err := s.Run(context.Background(), "test")
	require.NoError(t, err)
	assert.Equal(t, Result{}, res)
}

func TestNewRejectsUnknownTimezone(t *testing.T) {
	db, _, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	_, err = New(Config{Timezone: "Mars/Olympus"}, dbexec.NewStandardExecutor(db), nil, nil)
	assert.Error(t, err)
}

func TestParseRecord(t *testing.T) {
	london, err := time.LoadLocation(DefaultTimezone)
	require.NoError(t, err)
	now := time.Date(2024, 12, 1, 8, 30, 0, 0, time.UTC)

	tests := []struct {
		name    string
		fields  []string
		want    Record
		wantErr bool
	}{
		{
			name:   "winter time",
			fields: strings.Split("51.5,-0.1,300.2,0,0,2024-01-10,0905,N,h", ","),
			want:   Record{Latitude: 51.5, Longitude: -0.1, Temperature: "300.2", Confidence: 90, DateAcquired: time.Date(2024, 1, 10, 9, 5, 0, 0, time.UTC).In(london)},
		},
		{
			name:   "unknown confidence class",
			fields: strings.Split("1,2,3,0,0,bad,0905,N,maybe", ","),
			want:   Record{Latitude: 1, Longitude: 2, Temperature: "3", Confidence: 50, DateAcquired: now.In(london)},
		},
		{name: "too few columns", fields: []string{"1", "2"}, wantErr: true},
		{name: "bad latitude", fields: strings.Split("x,2,3,0,0,2024-01-10,0905,N,low", ","), wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseRecord(tt.fields, london, now)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want.Latitude, got.Latitude)
			assert.Equal(t, tt.want.Longitude, got.Longitude)
			assert.Equal(t, tt.want.Temperature, got.Temperature)
			assert.Equal(t, tt.want.Confidence, got.Confidence)
			assert.True(t, tt.want.DateAcquired.Equal(got.DateAcquired))
			assert.Equal(t, tt.want.DateAcquired.Format(dateLayout), got.DateAcquired.Format(dateLayout))
		})
	}
}
