package main

import (
	"fmt"
	"net/http"
	"sync"

	"github.com/gin-gonic/gin"

	eel "github.com/bjitd/eel-sdk"
	"github.com/bjitd/eel-sdk/metrics"
	"github.com/bjitd/eel-sdk/sink"
)

type ingestServer struct {
	schema *eel.Schema
	sink   *metrics.SinkMetrics
	raw    *sink.Sink

	mu      sync.Mutex
	created []string
}

// fileCreated is called from the sink's worker goroutines.
func (s *ingestServer) fileCreated(path string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.created = append(s.created, path)
}

func (s *ingestServer) createdFiles() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.created...)
}

// AppendRows accepts a JSON array of objects and writes each as one row.
func (s *ingestServer) AppendRows(c *gin.Context) {
	var docs []map[string]any
	if err := c.BindJSON(&docs); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	for _, doc := range docs {
		values := make([]any, s.schema.Len())
		for i, f := range s.schema.Fields() {
			raw, found := doc[f.Name]
			if !found || raw == nil {
				continue
			}

			v, err := coerce(f, raw)
			if err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
				return
			}
			values[i] = v
		}

		if err := s.sink.Write(eel.NewRow(s.schema, values...)); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
	}

	c.JSON(http.StatusAccepted, gin.H{"rows": len(docs)})
}

// coerce maps a decoded JSON value onto the column's Go type. JSON numbers
// arrive as float64 and are narrowed for integer columns.
func coerce(f eel.Field, raw any) (any, error) {
	switch f.Type {
	case eel.TypeString:
		if v, ok := raw.(string); ok {
			return v, nil
		}
	case eel.TypeBool:
		if v, ok := raw.(bool); ok {
			return v, nil
		}
	case eel.TypeFloat64:
		if v, ok := raw.(float64); ok {
			return v, nil
		}
	case eel.TypeInt64:
		if v, ok := raw.(float64); ok {
			return int64(v), nil
		}
	case eel.TypeInt32:
		if v, ok := raw.(float64); ok {
			return int32(v), nil
		}
	}

	return nil, fmt.Errorf("value %v (%T) is not valid for column '%s' of type %s", raw, raw, f.Name, f.Type)
}

func (s *ingestServer) GetStats(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"sink":    s.raw.Stats(),
		"metrics": s.sink.Snapshot(),
		"files":   s.createdFiles(),
	})
}

func (s *ingestServer) routes(r *gin.Engine) {
	r.POST("/rows", s.AppendRows)
	r.GET("/stats", s.GetStats)
}
