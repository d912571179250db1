package core

// CameraStatus is the reachability of a CCTV camera.
type CameraStatus string

const (
	StatusOnline  CameraStatus = "online"
	StatusOffline CameraStatus = "offline"
)

// ParseCameraStatus maps free text to a status. Anything mentioning "off"
// is offline; everything else, blank included, is online.
func ParseCameraStatus(s string) CameraStatus {
	if containsAny(s, "off") {
		return StatusOffline
	}
	return StatusOnline
}

// CftvDetails are the attributes of a CCTV camera.
type CftvDetails struct {
	CameraTag       string       `json:"cameraTag"`
	Status          CameraStatus `json:"status"`
	IP              string       `json:"ip"`
	ConnectedSwitch string       `json:"connectedSwitch,omitempty"`
	Panel           string       `json:"panel,omitempty"`
}

func (CftvDetails) Kind() Kind { return KindCftv }
func (d CftvDetails) Tag() string { return d.CameraTag }
func (CftvDetails) isDetails() {}

var cftvDefinition = KindDefinition{
	Kind:   KindCftv,
	TagKey: "cameraTag",
	Fields: append([]FieldSpec{
		{Key: "cameraTag", Label: "TAG da Câmera", Required: true},
		{Key: "ip", Label: "Endereço IP", Required: true},
		{Key: "status", Label: "Status (Online/Offline)"},
		{Key: "connectedSwitch", Label: "Switch Conectado"},
		{Key: "panel", Label: "Painel"},
	}, commonFields(KindCftv)...),
	build: func(v FieldValues) Details {
		return CftvDetails{
			CameraTag:       v.Get("cameraTag"),
			Status:          ParseCameraStatus(v.Get("status")),
			IP:              v.Get("ip"),
			ConnectedSwitch: v.Get("connectedSwitch"),
			Panel:           v.Get("panel"),
		}
	},
}
