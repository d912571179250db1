package core

// affirmativeTokens mark a yes/no cell as true when found anywhere in it.
var affirmativeTokens = []string{"sim", "true", "yes"}

// ParseAffirmative reports whether s reads as "yes".
func ParseAffirmative(s string) bool {
	return containsAny(s, affirmativeTokens...)
}

// EmbeddedDetails are the attributes of an embedded/IoT device.
type EmbeddedDetails struct {
	EquipmentTag string `json:"equipmentTag"`
	Model        string `json:"model,omitempty"`
	AviActive    bool   `json:"aviActive"`
	IPAviLte     string `json:"ipAviLte,omitempty"`
	IPAviWifi    string `json:"ipAviWifi,omitempty"`
	IPCisco      string `json:"ipCisco,omitempty"`
	IPSwitchEmb  string `json:"ipSwitchEmb,omitempty"`
	GRouter      string `json:"gRouter,omitempty"`
	DimTimPle    string `json:"dimTimPle,omitempty"`
	IPOptalerta  string `json:"ipOptalerta,omitempty"`
	IPMems       string `json:"ipMems,omitempty"`
}

func (EmbeddedDetails) Kind() Kind { return KindEmbedded }
func (d EmbeddedDetails) Tag() string { return d.EquipmentTag }
func (EmbeddedDetails) isDetails() {}

var embeddedDefinition = KindDefinition{
	Kind:   KindEmbedded,
	TagKey: "equipmentTag",
	Fields: append([]FieldSpec{
		{Key: "equipmentTag", Label: "TAG", Required: true},
		{Key: "model", Label: "MODELO"},
		{Key: "aviActive", Label: "AVI ATIVO?"},
		{Key: "ipAviLte", Label: "IP AVI LTE"},
		{Key: "ipAviWifi", Label: "IP AVI WIFI"},
		{Key: "ipCisco", Label: "IP CISCO"},
		{Key: "ipSwitchEmb", Label: "IP SWITCH"},
		{Key: "gRouter", Label: "G407 / G610 / Router"},
		{Key: "dimTimPle", Label: "DIM/TIM/PLE"},
		{Key: "ipOptalerta", Label: "IP Optalerta"},
		{Key: "ipMems", Label: "IP MEMS"},
	}, commonFields(KindEmbedded)...),
	build: func(v FieldValues) Details {
		return EmbeddedDetails{
			EquipmentTag: v.Get("equipmentTag"),
			Model:        v.Get("model"),
			AviActive:    ParseAffirmative(v.Get("aviActive")),
			IPAviLte:     v.Get("ipAviLte"),
			IPAviWifi:    v.Get("ipAviWifi"),
			IPCisco:      v.Get("ipCisco"),
			IPSwitchEmb:  v.Get("ipSwitchEmb"),
			GRouter:      v.Get("gRouter"),
			DimTimPle:    v.Get("dimTimPle"),
			IPOptalerta:  v.Get("ipOptalerta"),
			IPMems:       v.Get("ipMems"),
		}
	},
}
