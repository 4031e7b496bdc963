package export

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseParams(t *testing.T) {
	tests := []struct {
		want    Params
		name    string
		tag     string
		wantErr bool
	}{
		{
			name: "snapshot with epoch start",
			tag:  "DB;LOCAL;1970-01-01 00:00:00.000;false;",
			want: Params{Format: FormatDB, Target: TargetLocal},
		},
		{
			name: "csv with location and delete",
			tag:  "CSV;LOCAL;2016-06-20 09:00:00.000;true;/var/backups/ledger",
			want: Params{
				Format:            FormatCSV,
				Target:            TargetLocal,
				StartTime:         time.Date(2016, 6, 20, 9, 0, 0, 0, time.UTC),
				DeleteAfterExport: true,
				Location:          "/var/backups/ledger",
			},
		},
		{
			name: "lower case and zero start",
			tag:  "csv;local;0;false",
			want: Params{Format: FormatCSV, Target: TargetLocal},
		},
		{
			name: "google drive folder",
			tag:  "DB;GOOGLE_DRIVE;0;false;1AbCdEfG",
			want: Params{Format: FormatDB, Target: TargetGoogleDrive, Location: "1AbCdEfG"},
		},
		{
			name: "location keeps separators",
			tag:  "CSV;LOCAL;0;false;/srv/a;b;c",
			want: Params{Format: FormatCSV, Target: TargetLocal, Location: "/srv/a;b;c"},
		},
		{name: "too few fields", tag: "DB;LOCAL;0", wantErr: true},
		{name: "unknown format", tag: "QIF;LOCAL;0;false;", wantErr: true},
		{name: "remote target", tag: "DB;DROPBOX;0;false;", wantErr: true},
		{name: "bad time", tag: "DB;LOCAL;yesterday;false;", wantErr: true},
		{name: "bad flag", tag: "DB;LOCAL;0;maybe;", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseParams(tt.tag)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidParams)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParams_TagRoundTrip(t *testing.T) {
	params := Params{
		Format:            FormatCSV,
		Target:            TargetLocal,
		StartTime:         time.Date(2024, 3, 1, 12, 30, 15, 250_000_000, time.UTC),
		DeleteAfterExport: true,
		Location:          "/tmp/exports",
	}

	assert.Equal(t, "CSV;LOCAL;2024-03-01 12:30:15.250;true;/tmp/exports", params.Tag())

	parsed, err := ParseParams(params.Tag())
	require.NoError(t, err)
	assert.Equal(t, params, parsed)

	assert.Equal(t, "DB;LOCAL;1970-01-01 00:00:00.000;false;", DefaultParams().Tag())
}

func TestParams_TagRoundTripWithSeparatorInLocation(t *testing.T) {
	for _, location := range []string{"/backups/2024;q1", "a;b;c;d;e", "trailing;", ";"} {
		params := Params{Format: FormatDB, Target: TargetLocal, Location: location}
		parsed, err := ParseParams(params.Tag())
		require.NoError(t, err, location)
		assert.Equal(t, params, parsed)
	}
}

func TestParams_String(t *testing.T) {
	params := Params{Format: FormatDB, Target: TargetLocal, Location: "/backups"}
	assert.Equal(t,
		"Export all transactions modified ever as DB to LOCAL (/backups)",
		params.String())

	params.StartTime = time.Date(2024, 6, 1, 10, 0, 0, 0, time.UTC)
	params.Location = ""
	assert.Equal(t,
		"Export all transactions modified since 2024-06-01 10:00:00.000 UTC as DB to LOCAL",
		params.String())
}
