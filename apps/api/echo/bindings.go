package echoapi

import (
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/trezcool/academia/core"
	"github.com/trezcool/academia/core/user"
)

var orderingParam = "ordering"

type Ordering struct {
	Orderings []core.DBOrdering
}

func (ord *Ordering) Bind(ctx echo.Context, allowed ...string) {
	val := ctx.QueryParam(orderingParam)
	if val == "" {
		return
	}

	for _, field := range strings.Split(val, ",") {
		field = strings.TrimSpace(field)
		descending := strings.HasPrefix(field, "-")
		if descending {
			field = field[1:] // drop "-"
		}
		if field == "" {
			continue
		}
		ord.Orderings = append(ord.Orderings, core.DBOrdering{Field: field, Ascending: !descending})
	}
	if len(allowed) > 0 {
		ord.Orderings = core.FilterOrdering(ord.Orderings, allowed...)
	}
}

func bindPage(ctx echo.Context) core.Page {
	var page core.Page
	page.Number, _ = strconv.Atoi(ctx.QueryParam("page"))
	page.Size, _ = strconv.Atoi(ctx.QueryParam("page_size"))
	page.Clean()
	return page
}

// bindUserFilter binds the user.QueryFilter fields echo cannot bind by itself.
// Invalid values are reported as field errors.
func bindUserFilter(ctx echo.Context, filter *user.QueryFilter) error {
	var fldErrs []core.FieldError

	if val := ctx.QueryParam("is_active"); val != "" {
		isActive, err := strconv.ParseBool(val)
		if err != nil {
			fldErrs = append(fldErrs, core.FieldError{Field: "is_active", Error: "must be a boolean"})
		} else {
			filter.IsActive = &isActive
		}
	}
	for param, dst := range map[string]*time.Time{"created_from": &filter.CreatedFrom, "created_to": &filter.CreatedTo} {
		val := ctx.QueryParam(param)
		if val == "" {
			continue
		}
		t, err := time.Parse(time.RFC3339, val)
		if err != nil {
			fldErrs = append(fldErrs, core.FieldError{Field: param, Error: "must be an RFC 3339 date-time"})
			continue
		}
		*dst = t.UTC()
	}

	if len(fldErrs) > 0 {
		return core.NewValidationError(nil, fldErrs...)
	}
	filter.Clean()
	return nil
}
