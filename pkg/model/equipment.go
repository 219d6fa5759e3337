package model

type EquipmentItem string

const (
	EquipmentProjector       EquipmentItem = "projector"
	EquipmentWhiteboard      EquipmentItem = "whiteboard"
	EquipmentMicrophone      EquipmentItem = "microphone"
	EquipmentSpeaker         EquipmentItem = "speaker"
	EquipmentVideoConference EquipmentItem = "video_conference"
	EquipmentLaptop          EquipmentItem = "laptop"
	EquipmentExtensionCord   EquipmentItem = "extension_cord"
)

var KnownEquipment = []EquipmentItem{
	EquipmentProjector,
	EquipmentWhiteboard,
	EquipmentMicrophone,
	EquipmentSpeaker,
	EquipmentVideoConference,
	EquipmentLaptop,
	EquipmentExtensionCord,
}

func (e EquipmentItem) Known() bool {
	for _, k := range KnownEquipment {
		if e == k {
			return true
		}
	}
	return false
}

// Equipment is the checklist a requester attaches to a booking: a set of
// known item keys plus free text for anything else.
type Equipment struct {
	Items []EquipmentItem `json:"items,omitempty" bson:"items,omitempty" validate:"omitempty,max=20,unique,dive,equipment_item"`
	Other string          `json:"other,omitempty" bson:"other,omitempty" validate:"omitempty,max=500"`
}

func (e *Equipment) Empty() bool {
	return e == nil || (len(e.Items) == 0 && e.Other == "")
}
