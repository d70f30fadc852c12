package api

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"bidstack/internal/pricebins"
	"bidstack/internal/query"
	"bidstack/internal/version"
)

// list reads a repeated or comma-separated parameter.
func list(c *gin.Context, key string) []string {
	var out []string
	for _, raw := range c.QueryArray(key) {
		for _, v := range strings.Split(raw, ",") {
			if v = strings.TrimSpace(v); v != "" {
				out = append(out, v)
			}
		}
	}
	return out
}

func timestamp(c *gin.Context, key string) (time.Time, error) {
	raw := c.Query(key)
	if raw == "" {
		return time.Time{}, &query.InvalidFilterError{Field: key, Value: raw}
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return time.Time{}, &query.InvalidFilterError{Field: key, Value: raw}
	}
	return t.UTC(), nil
}

func window(c *gin.Context) (time.Time, time.Time, error) {
	start, err := timestamp(c, "start")
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	end, err := timestamp(c, "end")
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	return start, end, nil
}

func parseFilter(c *gin.Context) (query.Filter, error) {
	start, end, err := window(c)
	if err != nil {
		return query.Filter{}, err
	}
	resolution, err := query.ParseResolution(c.Query("resolution"))
	if err != nil {
		return query.Filter{}, err
	}
	return query.Filter{
		Regions:      list(c, "regions"),
		Start:        start,
		End:          end,
		Resolution:   resolution,
		DispatchType: c.Query("dispatch_type"),
		TechTypes:    list(c, "tech_types"),
	}, nil
}

func parseUnitQuery(c *gin.Context) (query.UnitQuery, error) {
	start, end, err := window(c)
	if err != nil {
		return query.UnitQuery{}, err
	}
	resolution, err := query.ParseResolution(c.Query("resolution"))
	if err != nil {
		return query.UnitQuery{}, err
	}
	basis, err := query.ParseVolumeBasis(c.Query("volume_basis"))
	if err != nil {
		return query.UnitQuery{}, err
	}
	return query.UnitQuery{DUIDs: list(c, "duids"), Start: start, End: end, Resolution: resolution, Basis: basis}, nil
}

func parsePriceQuery(c *gin.Context) (query.PriceQuery, error) {
	start, end, err := window(c)
	if err != nil {
		return query.PriceQuery{}, err
	}
	return query.PriceQuery{Regions: list(c, "regions"), Start: start, End: end}, nil
}

// respond maps query errors to status codes; a failed query never carries rows.
func respond[T any](c *gin.Context, rows []T, err error) {
	if err == nil {
		c.JSON(http.StatusOK, gin.H{"rows": rows})
		return
	}
	var (
		invalid    *query.InvalidFilterError
		outOfRange *pricebins.OutOfRangeError
	)
	switch {
	case errors.As(err, &invalid):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error(), "field": invalid.Field})
	case errors.As(err, &outOfRange):
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		c.JSON(http.StatusGatewayTimeout, gin.H{"error": "query cancelled"})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "query failed"})
	}
}

func badRequest(c *gin.Context, err error) {
	respond[struct{}](c, nil, err)
}

func (s *Server) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "healthy", "version": version.String()})
}

func (s *Server) backends(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"backends": s.queries.Names()})
}

func (s *Server) aggregateBids(c *gin.Context) {
	f, err := parseFilter(c)
	if err != nil {
		badRequest(c, err)
		return
	}
	basis, err := query.ParseVolumeBasis(c.Query("volume_basis"))
	if err != nil {
		badRequest(c, err)
		return
	}
	rows, err := s.queries.AggregateBids(c.Request.Context(), c.Query("backend"), query.BidQuery{Filter: f, Basis: basis})
	respond(c, rows, err)
}

func (s *Server) aggregateDispatch(c *gin.Context) {
	f, err := parseFilter(c)
	if err != nil {
		badRequest(c, err)
		return
	}
	rows, err := s.queries.AggregateDispatch(c.Request.Context(), c.Query("backend"), f)
	respond(c, rows, err)
}

func (s *Server) aggregateDispatchByUnits(c *gin.Context) {
	q, err := parseUnitQuery(c)
	if err != nil {
		badRequest(c, err)
		return
	}
	rows, err := s.queries.AggregateDispatchByUnits(c.Request.Context(), c.Query("backend"), q)
	respond(c, rows, err)
}

func (s *Server) bidsByUnit(c *gin.Context) {
	q, err := parseUnitQuery(c)
	if err != nil {
		badRequest(c, err)
		return
	}
	rows, err := s.queries.BidsByUnit(c.Request.Context(), c.Query("backend"), q)
	respond(c, rows, err)
}

func (s *Server) duidsAndStations(c *gin.Context) {
	f, err := parseFilter(c)
	if err != nil {
		badRequest(c, err)
		return
	}
	rows, err := s.queries.DUIDsAndStations(c.Request.Context(), c.Query("backend"), f)
	respond(c, rows, err)
}

func (s *Server) duidsForStations(c *gin.Context) {
	rows, err := s.queries.DUIDsForStations(c.Request.Context(), c.Query("backend"), list(c, "stations"))
	respond(c, rows, err)
}

func (s *Server) aggregatePrices(c *gin.Context) {
	q, err := parsePriceQuery(c)
	if err != nil {
		badRequest(c, err)
		return
	}
	rows, err := s.queries.AggregatePrices(c.Request.Context(), c.Query("backend"), q)
	respond(c, rows, err)
}

func (s *Server) regionDemand(c *gin.Context) {
	q, err := parsePriceQuery(c)
	if err != nil {
		badRequest(c, err)
		return
	}
	rows, err := s.queries.RegionDemand(c.Request.Context(), c.Query("backend"), q)
	respond(c, rows, err)
}

func (s *Server) distinctTechTypes(c *gin.Context) {
	rows, err := s.queries.DistinctTechTypes(c.Request.Context(), c.Query("backend"))
	respond(c, rows, err)
}
