package server

import "time"

type Load struct {
	LoadID           string    `json:"load_id"`
	Origin           string    `json:"origin"`
	Destination      string    `json:"destination"`
	PickupDatetime   time.Time `json:"pickup_datetime"`
	DeliveryDatetime time.Time `json:"delivery_datetime"`
	EquipmentType    string    `json:"equipment_type"`
	LoadboardRate    float64   `json:"loadboard_rate"`
	Notes            *string   `json:"notes"`
	Weight           float64   `json:"weight"`
	CommodityType    string    `json:"commodity_type"`
	NumOfPieces      *int      `json:"num_of_pieces"`
	Miles            float64   `json:"miles"`
	Dimensions       *string   `json:"dimensions"`
	CreatedAt        time.Time `json:"created_at"`
}

// RatePerMile miles 为 0 时返回 0
func (l Load) RatePerMile() float64 {
	if l.Miles <= 0 {
		return 0
	}
	return l.LoadboardRate / l.Miles
}

type loadSearch struct {
	EquipmentType string `validate:"omitempty,oneof=dry_van reefer flatbed step_deck double_drop lowboy other" json:"equipment_type"`
	Origin        string `json:"origin"`
	Destination   string `json:"destination"`
}

func (q loadSearch) empty() bool {
	return q.EquipmentType == "" && q.Origin == "" && q.Destination == ""
}
