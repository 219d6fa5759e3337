package admission

// Rejection reasons carried in AppError.Reason.
const (
	ReasonOutsideOperatingHours  = "outside_operating_hours"
	ReasonNotSameDay             = "not_same_day"
	ReasonInvalidTimeRange       = "invalid_time_range"
	ReasonStartInPast            = "start_in_past"
	ReasonDurationTooShort       = "duration_too_short"
	ReasonDurationTooLong        = "duration_too_long"
	ReasonFacilityNotFound       = "facility_not_found"
	ReasonFacilityInactive       = "facility_inactive"
	ReasonFacilityUnavailable    = "facility_unavailable"
	ReasonCapacityExceeded       = "capacity_exceeded"
	ReasonInvalidParticipants    = "invalid_participants"
	ReasonPolicyDurationExceeded = "policy_duration_exceeded"
	ReasonRoleRestricted         = "role_restricted"
	ReasonActiveBookingExists    = "active_booking_exists"
	ReasonOwnBookingOverlap      = "own_booking_overlap"
	ReasonSlotTaken              = "slot_taken"
	ReasonHoldConflict           = "hold_conflict"
)

// ForceCancelMessage is recorded as the admin response on bookings
// cancelled to make room for a new request from the same user.
const ForceCancelMessage = "force-cancelled by new booking request"
