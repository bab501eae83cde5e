package extapi

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// StatusValue absorbs the remote system's habit of encoding license status as
// either a number or a string. The raw form is preserved for the sync
// envelope.
type StatusValue struct {
	Raw string
	Num *int
}

func (s *StatusValue) UnmarshalJSON(data []byte) error {
	var num int
	if err := json.Unmarshal(data, &num); err == nil {
		s.Num = &num
		s.Raw = strconv.Itoa(num)
		return nil
	}

	var str string
	if err := json.Unmarshal(data, &str); err != nil {
		return fmt.Errorf("status is neither number nor string: %w", err)
	}

	s.Raw = str
	if n, err := strconv.Atoi(str); err == nil {
		s.Num = &n
	}

	return nil
}

func (s StatusValue) MarshalJSON() ([]byte, error) {
	if s.Num != nil {
		return json.Marshal(*s.Num)
	}
	return json.Marshal(s.Raw)
}

// Active interprets the remote convention: 1 or "active" means active.
func (s StatusValue) Active() bool {
	if s.Num != nil {
		return *s.Num == 1
	}
	return strings.EqualFold(s.Raw, "active")
}

// ExternalLicense is the remote authority's view of a license. Every field
// is a pointer because the payload is periodically incomplete, and the merge
// policy depends on present-vs-absent, not zero-vs-nonzero.
type ExternalLicense struct {
	AppID       *string      `json:"appid,omitempty"`
	CountID     *int64       `json:"countid,omitempty"`
	Email       *string      `json:"license_email,omitempty"`
	Status      *StatusValue `json:"status,omitempty"`
	DBA         *string      `json:"dba,omitempty"`
	Package     *string      `json:"package,omitempty"`
	WorkspaceID *string      `json:"workspace_id,omitempty"`
	ExpiryDate  *string      `json:"expiry_date,omitempty"`
	SMSBalance  *float64     `json:"sms_balance,omitempty"`
	Seats       *int         `json:"seats,omitempty"`
	Notes       *string      `json:"notes,omitempty"`
}

// expiry layouts the remote has been observed to emit.
var expiryLayouts = []string{time.RFC3339, "2006-01-02", "01/02/2006"}

// Expiry parses the expiry date when present. An unparseable date is
// reported, not silently dropped, so strict-mode validation can reject it.
func (e *ExternalLicense) Expiry() (*time.Time, error) {
	if e.ExpiryDate == nil || *e.ExpiryDate == "" {
		return nil, nil
	}

	for _, layout := range expiryLayouts {
		if t, err := time.Parse(layout, *e.ExpiryDate); err == nil {
			return &t, nil
		}
	}

	return nil, fmt.Errorf("unparseable expiry date %q", *e.ExpiryDate)
}

// Validate checks the minimum shape a record must have to be reconcilable:
// at least one identity axis and a parseable expiry when one is present.
func (e *ExternalLicense) Validate() error {
	if (e.AppID == nil || *e.AppID == "") &&
		(e.Email == nil || *e.Email == "") &&
		e.CountID == nil {
		return fmt.Errorf("record carries no identifier")
	}

	if _, err := e.Expiry(); err != nil {
		return err
	}

	return nil
}

// Identity returns a loggable identifier using the same priority order the
// matcher uses.
func (e *ExternalLicense) Identity() string {
	switch {
	case e.AppID != nil && *e.AppID != "":
		return *e.AppID
	case e.Email != nil && *e.Email != "":
		return *e.Email
	case e.CountID != nil:
		return fmt.Sprintf("C%d", *e.CountID)
	default:
		return "unidentified"
	}
}

// ListParams are the query parameters the remote list endpoint understands.
type ListParams struct {
	Page      int
	Limit     int
	Status    string
	DBA       string
	Email     string
	SortBy    string
	SortOrder string
}

// ListResponse carries one page plus the remote's pagination metadata.
// TotalPages and HasNext are optional; Total is always reported.
type ListResponse struct {
	Data       []*ExternalLicense `json:"data"`
	Total      int                `json:"total"`
	Page       int                `json:"page"`
	TotalPages *int               `json:"totalPages,omitempty"`
	HasNext    *bool              `json:"hasNext,omitempty"`
}
