package models

type ImportEntryStatus string

const (
	ImportEntryStatusPending   ImportEntryStatus = "PENDING"
	ImportEntryStatusProcessed ImportEntryStatus = "PROCESSED"
	ImportEntryStatusSkipped   ImportEntryStatus = "SKIPPED"
	ImportEntryStatusFailed    ImportEntryStatus = "FAILED"
)

type SkipReason string

const (
	SkipReasonNoLeaseTerm           SkipReason = "NO_LEASE_TERM"
	SkipReasonMissingUnit           SkipReason = "MISSING_UNIT"
	SkipReasonNewRecordExists       SkipReason = "NEW_RECORD_EXISTS"
	SkipReasonActiveLeaseEnded      SkipReason = "ACTIVE_LEASE_ENDED"
	SkipReasonMovedOut              SkipReason = "MOVED_OUT"
	SkipReasonActiveLeaseOnSameUnit SkipReason = "ACTIVE_LEASE_ON_SAME_UNIT"
)

type WorkflowName string

const (
	WorkflowNameActiveLease WorkflowName = "ACTIVE_LEASE"
	WorkflowNameNewLease    WorkflowName = "NEW_LEASE"
	WorkflowNameRenewal     WorkflowName = "RENEWAL"
)

type WorkflowState string

const (
	WorkflowStateActive   WorkflowState = "ACTIVE"
	WorkflowStateArchived WorkflowState = "ARCHIVED"
)

type MemberType string

const (
	MemberTypeResident  MemberType = "RESIDENT"
	MemberTypeGuarantor MemberType = "GUARANTOR"
	MemberTypeOccupant  MemberType = "OCCUPANT"
	// MemberTypeChild only ever appears on feed members; internally children
	// are stored as AdditionalInfo records, not PartyMembers.
	MemberTypeChild MemberType = "CHILD"
)

type ContactInfoType string

const (
	ContactInfoTypeEmail ContactInfoType = "EMAIL"
	ContactInfoTypePhone ContactInfoType = "PHONE"
)

type ActiveLeaseState string

const (
	ActiveLeaseStateNone      ActiveLeaseState = "NONE"
	ActiveLeaseStateMovingOut ActiveLeaseState = "MOVING_OUT"
)

type AdditionalInfoType string

const (
	AdditionalInfoTypePet     AdditionalInfoType = "PET"
	AdditionalInfoTypeVehicle AdditionalInfoType = "VEHICLE"
	AdditionalInfoTypeChild   AdditionalInfoType = "CHILD"
)

type ResidentStatus string

const (
	ResidentStatusCurrent ResidentStatus = "RESIDENT"
	ResidentStatusFuture  ResidentStatus = "FUTURERESIDENT"
	ResidentStatusPast    ResidentStatus = "PASTRESIDENT"
)

type ExceptionRule string

const (
	ExceptionRuleNewResidentAddedAfterRenewalStart        ExceptionRule = "NEW_RESIDENT_ADDED_AFTER_RENEWAL_START"
	ExceptionRuleDeletedMembersAfterRenewalStart          ExceptionRule = "DELETED_MEMBERS_AFTER_RENEWAL_START"
	ExceptionRuleRecurringChargesUpdatedAfterRenewalStart ExceptionRule = "RECURRING_CHARGES_UPDATED_AFTER_RENEWAL_START"
	ExceptionRuleConcessionsUpdatedAfterRenewalStart      ExceptionRule = "CONCESSIONS_UPDATED_AFTER_RENEWAL_START"
	ExceptionRuleLeaseEndDateUpdateAfterRenewalStart      ExceptionRule = "LEASE_END_DATE_UPDATE_AFTER_RENEWAL_START"
	ExceptionRuleLeaseStartDateUpdateAfterRenewalStart    ExceptionRule = "LEASE_START_DATE_UPDATE_AFTER_RENEWAL_START"
	ExceptionRuleLeaseTermUpdatedAfterRenewalStart        ExceptionRule = "LEASE_TERM_UPDATED_AFTER_RENEWAL_START"
	ExceptionRuleUnitRentUpdatedAfterRenewalStart         ExceptionRule = "UNIT_RENT_UPDATED_AFTER_RENEWAL_START"
	ExceptionRuleNameUpdatedAfterRenewalStart             ExceptionRule = "NAME_UPDATED_AFTER_RENEWAL_START"
	ExceptionRuleMemberTypeUpdatedAfterRenewalStart       ExceptionRule = "MEMBER_TYPE_UPDATED_AFTER_RENEWAL_START"
	ExceptionRuleOccupantVacateDateUpdatedAfterRenewal    ExceptionRule = "OCCUPANT_VACATE_DATE_UPDATED_AFTER_RENEWAL_START"
	ExceptionRuleVacateDateUpdatedAfterRenewalStart       ExceptionRule = "VACATE_DATE_UPDATED_AFTER_RENEWAL_START"
	ExceptionRuleEmailOrPhoneClearedOnImport              ExceptionRule = "EMAIL_OR_PHONE_CLEARED_ON_IMPORT"
	ExceptionRulePetsUpdatedAfterRenewalStart             ExceptionRule = "PETS_UPDATED_AFTER_RENEWAL_START"
	ExceptionRuleVehiclesUpdatedAfterRenewalStart         ExceptionRule = "VEHICLES_UPDATED_AFTER_RENEWAL_START"
	ExceptionRuleActiveLeaseAlreadyExistsForInventory     ExceptionRule = "ACTIVE_LEASE_ALREADY_EXISTS_FOR_INVENTORY"
)

// Machine reasons recorded when a previously filed report is auto-ignored.
const (
	IgnoreReasonMemberConfirmedOnRenewal = "MEMBER_CONFIRMED_ON_RENEWAL"
	IgnoreReasonVacateConfirmedOnRenewal = "VACATE_CONFIRMED_ON_RENEWAL"
	IgnoreReasonSupersededByNewReport    = "SUPERSEDED_BY_NEW_REPORT"
)

const (
	ImportProviderYardi = "yardi"
	ImportProviderMRI   = "mri"
)

const (
	ConnectionStatusConnected    = "connected"
	ConnectionStatusDisconnected = "disconnected"
	ConnectionStatusError        = "error"
)

const (
	SyncRunStatusQueued  = "queued"
	SyncRunStatusRunning = "running"
	SyncRunStatusSuccess = "success"
	SyncRunStatusFailed  = "failed"
	SyncRunStatusPartial = "partial"
)

const (
	SyncTriggeredManual = "manual"
	SyncTriggeredRetry  = "retry"
	SyncTriggeredSystem = "system"
)

const (
	JobProgressStatusIdle       = "idle"
	JobProgressStatusInProgress = "in_progress"
	JobProgressStatusSucceeded  = "succeeded"
	JobProgressStatusFailed     = "failed"
)

// Charges with this code carry the base rent; everything else on the charge
// list is a recurring charge (amount > 0) or a concession (amount < 0).
const BaseRentChargeCode = "RNT"

type PubSubMessageAction string

const (
	PubSubMessageActionCreate PubSubMessageAction = "CREATE"
	PubSubMessageActionUpdate PubSubMessageAction = "UPDATE"
	PubSubMessageActionDelete PubSubMessageAction = "DELETE"
)

type ActivityReferenceType string

const (
	ReferenceTypeParty           ActivityReferenceType = "Party"
	ReferenceTypePartyMember     ActivityReferenceType = "PartyMember"
	ReferenceTypePerson          ActivityReferenceType = "Person"
	ReferenceTypeActiveLease     ActivityReferenceType = "ActiveLeaseSnapshot"
	ReferenceTypeAdditionalInfo  ActivityReferenceType = "AdditionalInfo"
	ReferenceTypeExceptionReport ActivityReferenceType = "ExceptionReport"
	ReferenceTypeImportEntry     ActivityReferenceType = "ImportEntry"
)
