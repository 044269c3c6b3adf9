// Package directory serves the judicial geography: circumscriptions,
// localities, the offices that take bookings and the court organisms of
// the civil-hearing flow.
package directory

// Circunscripcion is a judicial district.
type Circunscripcion struct {
	ID     int64  `json:"id"`
	Nombre string `json:"nombre"`
}

// Localidad is a locality inside a circumscription.
type Localidad struct {
	ID                int64  `json:"id"`
	Nombre            string `json:"nombre"`
	CircunscripcionID int64  `json:"circunscripcion_id"`
}

// Oficina is a bookable office. Only enabled offices appear in the wizard.
type Oficina struct {
	ID          int64  `json:"id"`
	Nombre      string `json:"nombre"`
	LocalidadID int64  `json:"localidad_id"`
	Habilitada  bool   `json:"habilitada"`
}

// Organismo is a court organism of the civil-hearing flow.
type Organismo struct {
	ID     int64  `json:"id"`
	Nombre string `json:"nombre"`
	Codigo string `json:"codigo"`
}
