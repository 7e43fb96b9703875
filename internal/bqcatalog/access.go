package bqcatalog

import (
	"cloud.google.com/go/bigquery"

	"bq-viewsync/internal/domain"
)

var entityTypeNames = map[bigquery.EntityType]string{
	bigquery.DomainEntity:       "domain",
	bigquery.GroupEmailEntity:   "groupByEmail",
	bigquery.UserEmailEntity:    "userByEmail",
	bigquery.SpecialGroupEntity: "specialGroup",
	bigquery.ViewEntity:         domain.EntityTypeView,
	bigquery.IAMMemberEntity:    "iamMember",
}

func entityTypeFromName(name string) (bigquery.EntityType, bool) {
	for t, n := range entityTypeNames {
		if n == name {
			return t, true
		}
	}
	return 0, false
}

func accessFromBQ(e *bigquery.AccessEntry) domain.AccessEntry {
	name, ok := entityTypeNames[e.EntityType]
	if !ok {
		name = "other"
	}
	out := domain.AccessEntry{
		Role:       string(e.Role),
		EntityType: name,
		EntityID:   e.Entity,
		Native:     e,
	}
	if e.EntityType == bigquery.ViewEntity && e.View != nil {
		out.View = &domain.TableRef{
			ProjectID: e.View.ProjectID,
			DatasetID: e.View.DatasetID,
			TableID:   e.View.TableID,
		}
	}
	return out
}

// accessToBQ prefers the entry's native value so routine, dataset, and
// conditional grants read from the service round-trip unchanged.
func accessToBQ(e domain.AccessEntry) *bigquery.AccessEntry {
	if native, ok := e.Native.(*bigquery.AccessEntry); ok && native != nil {
		return native
	}
	if e.View != nil {
		return &bigquery.AccessEntry{
			EntityType: bigquery.ViewEntity,
			View: &bigquery.Table{
				ProjectID: e.View.ProjectID,
				DatasetID: e.View.DatasetID,
				TableID:   e.View.TableID,
			},
		}
	}
	t, _ := entityTypeFromName(e.EntityType)
	return &bigquery.AccessEntry{
		Role:       bigquery.AccessRole(e.Role),
		EntityType: t,
		Entity:     e.EntityID,
	}
}
