package models

// Document store collections.
const (
	CollectionAccounts      = "accounts"
	CollectionEvents        = "events"
	CollectionRegistrations = "registrations"
	CollectionRefreshTokens = "refresh_tokens"
)

// Document field names shared by repositories and live queries.
const (
	FieldFirstName        = "firstName"
	FieldLastName         = "lastName"
	FieldUserName         = "userName"
	FieldEmail            = "email"
	FieldPasswordHash     = "passwordHash"
	FieldRole             = "role"
	FieldActive           = "active"
	FieldLastLogin        = "lastLogin"
	FieldCreatedAt        = "createdAt"
	FieldUpdatedAt        = "updatedAt"
	FieldName             = "name"
	FieldDescription      = "description"
	FieldCategory         = "category"
	FieldLocation         = "location"
	FieldDate             = "date"
	FieldTime             = "time"
	FieldCapacity         = "capacity"
	FieldImageURL         = "imageUrl"
	FieldCreatedBy        = "createdBy"
	FieldIsDeleted        = "isDeleted"
	FieldEventID          = "eventId"
	FieldEventName        = "eventName"
	FieldAttendeeName     = "attendeeName"
	FieldAttendeeEmail    = "attendeeEmail"
	FieldRegistrationDate = "registrationDate"
	FieldStatus           = "status"
	FieldUserID           = "userId"
	FieldToken            = "token"
	FieldExpiresAt        = "expiresAt"
	FieldRevoked          = "revoked"
	FieldRevokedAt        = "revokedAt"
	FieldIPAddress        = "ip"
	FieldUserAgent        = "userAgent"
)
