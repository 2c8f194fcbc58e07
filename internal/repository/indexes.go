package repository

import (
	"github.com/noah-isme/campus-events-api/internal/models"
	"github.com/noah-isme/campus-events-api/pkg/docstore"
)

// DocumentIndexes are the secondary indexes the repositories query by.
var DocumentIndexes = []docstore.Index{
	{Collection: models.CollectionAccounts, Fields: []string{models.FieldEmail}, Unique: true, Name: "accounts_email_uq"},
	{Collection: models.CollectionEvents, Fields: []string{models.FieldIsDeleted, models.FieldDate}, Name: "events_live_date_idx"},
	{Collection: models.CollectionEvents, Fields: []string{models.FieldCreatedBy, models.FieldIsDeleted}, Name: "events_owner_idx"},
	{Collection: models.CollectionRegistrations, Fields: []string{models.FieldEventID, models.FieldAttendeeEmail}, Name: "registrations_event_email_idx"},
	{Collection: models.CollectionRegistrations, Fields: []string{models.FieldAttendeeEmail}, Name: "registrations_email_idx"},
	{Collection: models.CollectionRefreshTokens, Fields: []string{models.FieldToken}, Unique: true, Name: "refresh_tokens_token_uq"},
	{Collection: models.CollectionRefreshTokens, Fields: []string{models.FieldUserID, models.FieldRevoked}, Name: "refresh_tokens_user_idx"},
}
