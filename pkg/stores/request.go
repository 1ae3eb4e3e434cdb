package stores

import (
	"context"
	"fmt"

	"github.com/openfroyo/descriptions/pkg/entity"
	"github.com/openfroyo/descriptions/pkg/fetch"
)

// IDParam is the request param holding the entity id.
const IDParam = "id"

// RequestFunc returns a request function that loads the entity named by
// params[IDParam] from s. The returned entity is a copy.
func RequestFunc(s Store) fetch.RequestFunc {
	return VersionedRequestFunc(s, nil)
}

// VersionedRequestFunc is RequestFunc that also reports the version of
// every record it loads, for callers that write back with PutIfVersion.
func VersionedRequestFunc(s Store, onVersion func(id string, version int64)) fetch.RequestFunc {
	return func(ctx context.Context, params map[string]interface{}) (entity.Entity, error) {
		id, ok := params[IDParam].(string)
		if !ok || id == "" {
			return nil, fmt.Errorf("request params have no %q", IDParam)
		}
		rec, err := s.Get(ctx, id)
		if err != nil {
			return nil, err
		}
		if onVersion != nil {
			onVersion(id, rec.Version)
		}
		return entity.Clone(rec.Data), nil
	}
}
