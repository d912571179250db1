package core

// SwitchDetails are the attributes of a network switch.
type SwitchDetails struct {
	SwitchTag   string `json:"switchTag"`
	SwitchBrand string `json:"switchBrand,omitempty"`
	IP          string `json:"ip"`
	Panel       string `json:"panel,omitempty"`
}

func (SwitchDetails) Kind() Kind { return KindSwitch }
func (d SwitchDetails) Tag() string { return d.SwitchTag }
func (SwitchDetails) isDetails() {}

var switchDefinition = KindDefinition{
	Kind:   KindSwitch,
	TagKey: "switchTag",
	Fields: append([]FieldSpec{
		{Key: "switchTag", Label: "TAG do Switch", Required: true},
		{Key: "ip", Label: "Endereço IP", Required: true},
		{Key: "switchBrand", Label: "Marca/Modelo"},
		{Key: "panel", Label: "Painel"},
	}, commonFields(KindSwitch)...),
	build: func(v FieldValues) Details {
		return SwitchDetails{
			SwitchTag:   v.Get("switchTag"),
			SwitchBrand: v.Get("switchBrand"),
			IP:          v.Get("ip"),
			Panel:       v.Get("panel"),
		}
	},
}
