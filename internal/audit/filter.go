package audit

import (
	"net/url"
	"strconv"
	"strings"

	"github.com/pkg/errors"
	"github.com/prasenjit/proxyboy/internal/models"
	"github.com/tidwall/gjson"
)

// ParseFilter reads method, path, status, field, value and limit from query
// parameters. A missing limit becomes defaultLimit.
func ParseFilter(q url.Values, defaultLimit int) (*models.AuditFilter, error) {
	filter := &models.AuditFilter{
		Method:    q.Get("method"),
		Path:      q.Get("path"),
		BodyField: q.Get("field"),
		BodyValue: q.Get("value"),
		Limit:     defaultLimit,
	}

	if s := q.Get("status"); s != "" {
		status, err := strconv.Atoi(s)
		if err != nil {
			return nil, errors.New("status must be a number")
		}
		filter.StatusCode = status
	}
	if s := q.Get("limit"); s != "" {
		limit, err := strconv.Atoi(s)
		if err != nil || limit < 0 {
			return nil, errors.New("limit must be a non-negative number")
		}
		filter.Limit = limit
	}
	if filter.BodyValue != "" && filter.BodyField == "" {
		return nil, errors.New("value requires field")
	}

	return filter, nil
}

// Matches reports whether rec passes filter. A nil filter matches
// everything; Limit is ignored.
func Matches(filter *models.AuditFilter, rec *models.AuditRecord) bool {
	if filter == nil {
		return true
	}
	if filter.Method != "" && !strings.EqualFold(rec.Method, filter.Method) {
		return false
	}
	if filter.Path != "" && !strings.Contains(rec.Path, filter.Path) {
		return false
	}
	if filter.StatusCode != 0 && rec.StatusCode != filter.StatusCode {
		return false
	}
	if filter.BodyField != "" {
		if !gjson.Valid(rec.Body) {
			return false
		}
		res := gjson.Get(rec.Body, filter.BodyField)
		if !res.Exists() {
			return false
		}
		if filter.BodyValue != "" && res.String() != filter.BodyValue {
			return false
		}
	}
	return true
}
