package mcpserver

import (
	"context"
	"fmt"

	"github.com/webharvest/webharvest/internal/jobapi"
	"github.com/webharvest/webharvest/internal/jsonrpc"
)

// toolDef is one entry of the closed tool-name set §4.M names; each
// tool is a thin wrapper whose arguments JSON-schema-validate into the
// corresponding jobapi request struct.
type toolDef struct {
	name        string
	description string
	schema      map[string]any
	call        func(svc *jobapi.Service, args map[string]any) (any, error)
}

func stringArg(args map[string]any, key string) (string, bool) {
	v, ok := args[key].(string)
	return v, ok
}

func intArg(args map[string]any, key string) int {
	if v, ok := args[key].(float64); ok {
		return int(v)
	}
	return 0
}

func toolDefinitionsByName() map[string]toolDef {
	return map[string]toolDef{
		"scrape_url": {
			name:        "scrape_url",
			description: "Fetch and convert a single URL.",
			schema: map[string]any{
				"type":       "object",
				"required":   []string{"url"},
				"properties": map[string]any{"url": map[string]any{"type": "string"}},
			},
			call: func(svc *jobapi.Service, args map[string]any) (any, error) {
				url, ok := stringArg(args, "url")
				if !ok {
					return nil, jsonrpc.NewError(jsonrpc.InvalidParams, "url is required")
				}
				result, err := svc.Scrape(context.Background(), jobapi.ScrapeRequest{URL: url})
				if err != nil {
					return nil, jsonrpc.NewError(jsonrpc.InternalError, err.Error())
				}
				return result, nil
			},
		},
		"crawl_site": {
			name:        "crawl_site",
			description: "Mirror a site breadth-first and return a crawl job id.",
			schema: map[string]any{
				"type":       "object",
				"required":   []string{"url"},
				"properties": map[string]any{"url": map[string]any{"type": "string"}, "maxDepth": map[string]any{"type": "integer"}, "maxPages": map[string]any{"type": "integer"}},
			},
			call: func(svc *jobapi.Service, args map[string]any) (any, error) {
				url, ok := stringArg(args, "url")
				if !ok {
					return nil, jsonrpc.NewError(jsonrpc.InvalidParams, "url is required")
				}
				id, err := svc.CrawlSubmit(jobapi.CrawlRequest{URL: url, MaxDepth: intArg(args, "maxDepth"), MaxPages: intArg(args, "maxPages")})
				if err != nil {
					return nil, jsonrpc.NewError(jsonrpc.InternalError, err.Error())
				}
				return map[string]any{"id": id}, nil
			},
		},
		"get_crawl_status": {
			name:        "get_crawl_status",
			description: "Return a crawl job's current status.",
			schema: map[string]any{
				"type":       "object",
				"required":   []string{"id"},
				"properties": map[string]any{"id": map[string]any{"type": "string"}},
			},
			call: func(svc *jobapi.Service, args map[string]any) (any, error) {
				id, ok := stringArg(args, "id")
				if !ok {
					return nil, jsonrpc.NewError(jsonrpc.InvalidParams, "id is required")
				}
				job, err := svc.CrawlStatus(id)
				if err != nil {
					return nil, jsonrpc.NewError(jsonrpc.InvalidParams, fmt.Sprintf("crawl %s not found", id))
				}
				return job, nil
			},
		},
		"cancel_crawl": {
			name:        "cancel_crawl",
			description: "Request cancellation of a running crawl.",
			schema: map[string]any{
				"type":       "object",
				"required":   []string{"id"},
				"properties": map[string]any{"id": map[string]any{"type": "string"}},
			},
			call: func(svc *jobapi.Service, args map[string]any) (any, error) {
				id, ok := stringArg(args, "id")
				if !ok {
					return nil, jsonrpc.NewError(jsonrpc.InvalidParams, "id is required")
				}
				if err := svc.CrawlCancel(id); err != nil {
					return nil, jsonrpc.NewError(jsonrpc.InvalidParams, err.Error())
				}
				return map[string]any{"canceled": true}, nil
			},
		},
		"map_site": {
			name:        "map_site",
			description: "Discover URLs under a site via sitemap/same-domain discovery.",
			schema: map[string]any{
				"type":       "object",
				"required":   []string{"url"},
				"properties": map[string]any{"url": map[string]any{"type": "string"}, "search": map[string]any{"type": "string"}, "limit": map[string]any{"type": "integer"}},
			},
			call: func(svc *jobapi.Service, args map[string]any) (any, error) {
				url, ok := stringArg(args, "url")
				if !ok {
					return nil, jsonrpc.NewError(jsonrpc.InvalidParams, "url is required")
				}
				search, _ := stringArg(args, "search")
				result, err := svc.MapSite(jobapi.MapRequest{URL: url, Search: search, Limit: intArg(args, "limit")})
				if err != nil {
					return nil, jsonrpc.NewError(jsonrpc.InternalError, err.Error())
				}
				return result, nil
			},
		},
		"batch_scrape": {
			name:        "batch_scrape",
			description: "Scrape a list of URLs with bounded concurrency and return a batch id.",
			schema: map[string]any{
				"type":       "object",
				"required":   []string{"urls"},
				"properties": map[string]any{"urls": map[string]any{"type": "array", "items": map[string]any{"type": "string"}}, "maxConcurrency": map[string]any{"type": "integer"}},
			},
			call: func(svc *jobapi.Service, args map[string]any) (any, error) {
				raw, ok := args["urls"].([]any)
				if !ok || len(raw) == 0 {
					return nil, jsonrpc.NewError(jsonrpc.InvalidParams, "urls is required")
				}
				urls := make([]string, 0, len(raw))
				for _, u := range raw {
					if s, ok := u.(string); ok {
						urls = append(urls, s)
					}
				}
				id, err := svc.BatchScrape(jobapi.BatchScrapeRequest{URLs: urls, MaxConcurrency: intArg(args, "maxConcurrency")})
				if err != nil {
					return nil, jsonrpc.NewError(jsonrpc.InternalError, err.Error())
				}
				return map[string]any{"id": id}, nil
			},
		},
		"get_batch_status": {
			name:        "get_batch_status",
			description: "Return a batch job's current progress.",
			schema: map[string]any{
				"type":       "object",
				"required":   []string{"id"},
				"properties": map[string]any{"id": map[string]any{"type": "string"}},
			},
			call: func(svc *jobapi.Service, args map[string]any) (any, error) {
				id, ok := stringArg(args, "id")
				if !ok {
					return nil, jsonrpc.NewError(jsonrpc.InvalidParams, "id is required")
				}
				job, err := svc.BatchStatus(id)
				if err != nil {
					return nil, jsonrpc.NewError(jsonrpc.InvalidParams, fmt.Sprintf("batch %s not found", id))
				}
				return job, nil
			},
		},
		"sync_crawl_to_collection": {
			name:        "sync_crawl_to_collection",
			description: "Hand a completed crawl's job id to an external collection reference.",
			schema: map[string]any{
				"type":       "object",
				"required":   []string{"crawlId", "collectionRef"},
				"properties": map[string]any{"crawlId": map[string]any{"type": "string"}, "collectionRef": map[string]any{"type": "string"}},
			},
			call: func(svc *jobapi.Service, args map[string]any) (any, error) {
				crawlID, ok1 := stringArg(args, "crawlId")
				ref, ok2 := stringArg(args, "collectionRef")
				if !ok1 || !ok2 {
					return nil, jsonrpc.NewError(jsonrpc.InvalidParams, "crawlId and collectionRef are required")
				}
				if err := svc.SyncCrawlToCollection(crawlID, ref); err != nil {
					return nil, jsonrpc.NewError(jsonrpc.InvalidParams, err.Error())
				}
				return map[string]any{"synced": true}, nil
			},
		},
		"create_project": {
			name:        "create_project",
			description: "Create a project to group crawl/batch jobs.",
			schema: map[string]any{
				"type":       "object",
				"required":   []string{"name"},
				"properties": map[string]any{"name": map[string]any{"type": "string"}, "description": map[string]any{"type": "string"}},
			},
			call: func(svc *jobapi.Service, args map[string]any) (any, error) {
				name, ok := stringArg(args, "name")
				if !ok {
					return nil, jsonrpc.NewError(jsonrpc.InvalidParams, "name is required")
				}
				description, _ := stringArg(args, "description")
				project, err := svc.CreateProject(name, description)
				if err != nil {
					return nil, jsonrpc.NewError(jsonrpc.InternalError, err.Error())
				}
				return project, nil
			},
		},
		"list_projects": {
			name:        "list_projects",
			description: "List every known project.",
			schema:      map[string]any{"type": "object", "properties": map[string]any{}},
			call: func(svc *jobapi.Service, args map[string]any) (any, error) {
				projects, err := svc.ListProjects()
				if err != nil {
					return nil, jsonrpc.NewError(jsonrpc.InternalError, err.Error())
				}
				return map[string]any{"projects": projects}, nil
			},
		},
	}
}
