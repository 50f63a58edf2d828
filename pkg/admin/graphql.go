package admin

import (
	"encoding/json"
	"net/http"

	"github.com/graphql-go/graphql"

	"github.com/mnohosten/pagecache/pkg/bufferpool"
	"github.com/mnohosten/pagecache/pkg/metrics"
	"github.com/mnohosten/pagecache/pkg/storage"
)

// Schema builds the read-only GraphQL schema over one pool: poolStats,
// directoryStats and a per-frame lookup. It is a declarative window onto
// the same counters /stats serves imperatively.
func Schema(pool *bufferpool.Pool, disk metrics.StatsSource) (graphql.Schema, error) {
	poolStatsType := graphql.NewObject(graphql.ObjectConfig{
		Name:        "PoolStats",
		Description: "Buffer pool counters",
		Fields: graphql.Fields{
			"hits": &graphql.Field{
				Type:        graphql.NewNonNull(graphql.Int),
				Description: "Fetches served from a resident frame",
			},
			"misses": &graphql.Field{
				Type:        graphql.NewNonNull(graphql.Int),
				Description: "Fetches that went to disk",
			},
			"evictions": &graphql.Field{
				Type:        graphql.NewNonNull(graphql.Int),
				Description: "Pages evicted to make room",
			},
			"pinnedFrames": &graphql.Field{
				Type:        graphql.NewNonNull(graphql.Int),
				Description: "Frames currently pinned",
			},
			"dirtyFrames": &graphql.Field{
				Type:        graphql.NewNonNull(graphql.Int),
				Description: "Resident frames with unwritten changes",
			},
			"freeFrames": &graphql.Field{
				Type:        graphql.NewNonNull(graphql.Int),
				Description: "Frames on the free list",
			},
		},
	})

	directoryStatsType := graphql.NewObject(graphql.ObjectConfig{
		Name:        "DirectoryStats",
		Description: "Extendible hash directory shape",
		Fields: graphql.Fields{
			"globalDepth": &graphql.Field{
				Type:        graphql.NewNonNull(graphql.Int),
				Description: "Directory size exponent",
			},
			"numBuckets": &graphql.Field{
				Type:        graphql.NewNonNull(graphql.Int),
				Description: "Distinct buckets",
			},
		},
	})

	frameType := graphql.NewObject(graphql.ObjectConfig{
		Name:        "Frame",
		Description: "A resident page's frame metadata",
		Fields: graphql.Fields{
			"pageId": &graphql.Field{
				Type:        graphql.NewNonNull(graphql.Int),
				Description: "Page identifier",
			},
			"pinCount": &graphql.Field{
				Type:        graphql.NewNonNull(graphql.Int),
				Description: "Current pin count",
			},
			"dirty": &graphql.Field{
				Type:        graphql.NewNonNull(graphql.Boolean),
				Description: "Whether the frame has unwritten changes",
			},
		},
	})

	queryType := graphql.NewObject(graphql.ObjectConfig{
		Name: "Query",
		Fields: graphql.Fields{
			"poolStats": &graphql.Field{
				Type:        poolStatsType,
				Description: "Buffer pool counters",
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					stats := pool.Stats()
					return map[string]interface{}{
						"hits":         int(stats["hits"].(uint64)),
						"misses":       int(stats["misses"].(uint64)),
						"evictions":    int(stats["evictions"].(uint64)),
						"pinnedFrames": stats["pinned_frames"],
						"dirtyFrames":  stats["dirty_frames"],
						"freeFrames":   stats["free_frames"],
					}, nil
				},
			},
			"directoryStats": &graphql.Field{
				Type:        directoryStatsType,
				Description: "Page table directory shape",
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					stats := pool.Stats()
					return map[string]interface{}{
						"globalDepth": stats["global_depth"],
						"numBuckets":  stats["num_buckets"],
					}, nil
				},
			},
			"frame": &graphql.Field{
				Type:        frameType,
				Description: "Frame metadata for one resident page, null if absent",
				Args: graphql.FieldConfigArgument{
					"pageId": &graphql.ArgumentConfig{
						Type: graphql.NewNonNull(graphql.Int),
					},
				},
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					id, _ := p.Args["pageId"].(int)
					pin, dirty, resident := pool.FrameInfo(storage.PageID(id))
					if !resident {
						return nil, nil
					}
					return map[string]interface{}{
						"pageId":   id,
						"pinCount": pin,
						"dirty":    dirty,
					}, nil
				},
			},
		},
	})

	return graphql.NewSchema(graphql.SchemaConfig{Query: queryType})
}

// GraphQLHandler serves the schema over HTTP.
type GraphQLHandler struct {
	schema graphql.Schema
}

// NewGraphQLHandler creates a new GraphQL HTTP handler
func NewGraphQLHandler(pool *bufferpool.Pool, disk metrics.StatsSource) (*GraphQLHandler, error) {
	schema, err := Schema(pool, disk)
	if err != nil {
		return nil, err
	}
	return &GraphQLHandler{schema: schema}, nil
}

// graphQLRequest represents a GraphQL HTTP request
type graphQLRequest struct {
	Query         string                 `json:"query"`
	OperationName string                 `json:"operationName"`
	Variables     map[string]interface{} `json:"variables"`
}

// ServeHTTP handles GraphQL HTTP requests
func (h *GraphQLHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "GraphQL only accepts POST requests", http.StatusMethodNotAllowed)
		return
	}

	var req graphQLRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		json.NewEncoder(w).Encode(map[string]interface{}{
			"errors": []map[string]interface{}{{"message": "invalid request body"}},
		})
		return
	}

	result := graphql.Do(graphql.Params{
		Schema:         h.schema,
		RequestString:  req.Query,
		VariableValues: req.Variables,
		OperationName:  req.OperationName,
		Context:        r.Context(),
	})

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(result)
}
