// Package export writes ledger backups: full database snapshots and CSV
// extracts of recently modified transactions, kept on disk or uploaded to
// Google Drive.
package export

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Format is the kind of file a backup produces.
type Format string

// Supported formats.
const (
	FormatDB  Format = "DB"
	FormatCSV Format = "CSV"
)

// Target is where a backup is written.
type Target string

// Supported targets.
const (
	// TargetLocal writes into a directory on the local filesystem.
	TargetLocal Target = "LOCAL"
	// TargetGoogleDrive uploads into a Google Drive folder. The location is
	// the folder ID.
	TargetGoogleDrive Target = "GOOGLE_DRIVE"
)

// timestampLayout is the UTC layout used for the start time in a tag.
const timestampLayout = "2006-01-02 15:04:05.000"

// ErrInvalidParams indicates a malformed export tag.
var ErrInvalidParams = errors.New("invalid export parameters")

// Params configures one export run.
// The zero StartTime exports everything.
type Params struct {
	StartTime         time.Time
	Format            Format
	Target            Target
	Location          string
	DeleteAfterExport bool
}

// DefaultParams returns a local database snapshot of everything.
func DefaultParams() Params {
	return Params{
		Format: FormatDB,
		Target: TargetLocal,
	}
}

// ParseParams decodes a tag of the form FORMAT;TARGET;START_UTC;DELETE;LOCATION.
// The location segment is optional and is everything after the fourth
// separator, so it may itself contain ';'.
func ParseParams(tag string) (Params, error) {
	tokens := strings.SplitN(tag, ";", 5)
	if len(tokens) < 4 {
		return Params{}, fmt.Errorf("%w: expected 4 or 5 fields in %q", ErrInvalidParams, tag)
	}

	params := Params{
		Format: Format(strings.ToUpper(strings.TrimSpace(tokens[0]))),
		Target: Target(strings.ToUpper(strings.TrimSpace(tokens[1]))),
	}
	if err := params.Validate(); err != nil {
		return Params{}, err
	}

	start, err := parseStartTime(strings.TrimSpace(tokens[2]))
	if err != nil {
		return Params{}, err
	}
	params.StartTime = start

	params.DeleteAfterExport, err = strconv.ParseBool(strings.TrimSpace(tokens[3]))
	if err != nil {
		return Params{}, fmt.Errorf("%w: delete flag %q", ErrInvalidParams, tokens[3])
	}
	if len(tokens) == 5 {
		params.Location = tokens[4]
	}
	return params, nil
}

// Validate checks the format and target.
func (p Params) Validate() error {
	switch p.Format {
	case FormatDB, FormatCSV:
	default:
		return fmt.Errorf("%w: unknown format %q", ErrInvalidParams, p.Format)
	}
	switch p.Target {
	case TargetLocal, TargetGoogleDrive:
	default:
		return fmt.Errorf("%w: unsupported target %q", ErrInvalidParams, p.Target)
	}
	return nil
}

// Tag encodes the parameters for storage on a scheduled action.
func (p Params) Tag() string {
	start := time.Unix(0, 0).UTC()
	if !p.StartTime.IsZero() {
		start = p.StartTime.UTC()
	}
	return strings.Join([]string{
		string(p.Format),
		string(p.Target),
		start.Format(timestampLayout),
		strconv.FormatBool(p.DeleteAfterExport),
		p.Location,
	}, ";")
}

func (p Params) String() string {
	since := "ever"
	if !p.StartTime.IsZero() {
		since = "since " + p.StartTime.UTC().Format(timestampLayout) + " UTC"
	}
	s := fmt.Sprintf("Export all transactions modified %s as %s to %s", since, p.Format, p.Target)
	if p.Location != "" {
		s += fmt.Sprintf(" (%s)", p.Location)
	}
	return s
}

func parseStartTime(s string) (time.Time, error) {
	if s == "" || s == "0" {
		return time.Time{}, nil
	}
	start, err := time.Parse(timestampLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: start time %q", ErrInvalidParams, s)
	}
	if start.Equal(time.Unix(0, 0)) {
		return time.Time{}, nil
	}
	return start, nil
}
