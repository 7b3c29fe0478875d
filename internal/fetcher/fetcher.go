package fetcher

import (
	"context"
	"net/http"

	"github.com/webharvest/webharvest/pkg/failure"
	"github.com/webharvest/webharvest/pkg/retry"
)

type Fetcher interface {
	Init(httpClient *http.Client)
	Fetch(
		ctx context.Context,
		crawlDepth int,
		fetchParam FetchParam,
		retryParam retry.RetryParam,
	) (FetchResult, failure.ClassifiedError)
}
