package records

import (
	"time"

	"github.com/platinummonkey/casedesk/pkg/structures"
)

// Anagrafica is a personal record
type Anagrafica struct {
	ID string `json:"id"`

	Cognome               string   `json:"cognome"`
	Nome                  string   `json:"nome"`
	Sesso                 string   `json:"sesso"`
	DataDiNascita         string   `json:"dataDiNascita,omitempty"`
	Cittadinanza          []string `json:"cittadinanza"`
	ComuneDiDomicilio     string   `json:"comuneDiDomicilio,omitempty"`
	Telefono              string   `json:"telefono,omitempty"`
	Email                 string   `json:"email,omitempty"`
	Nucleo                string   `json:"nucleo"`
	NucleoTipo            string   `json:"nucleoTipo,omitempty"`
	Figli                 *int     `json:"figli"`
	SituazioneLegale      string   `json:"situazioneLegale,omitempty"`
	SituazioneAbitativa   []string `json:"situazioneAbitativa,omitempty"`
	SituazioneLavorativa  string   `json:"situazioneLavorativa,omitempty"`
	TitoloDiStudioOrigine string   `json:"titoloDiStudioOrigine,omitempty"`
	TitoloDiStudioItalia  string   `json:"titoloDiStudioItalia,omitempty"`
	ConoscenzaItaliano    string   `json:"conoscenzaItaliano,omitempty"`
	Vulnerabilita         []string `json:"vulnerabilita,omitempty"`
	IntenzioneItalia      string   `json:"intenzioneItalia,omitempty"`
	PaeseDestinazione     string   `json:"paeseDestinazione,omitempty"`
	Referral              string   `json:"referral,omitempty"`
	ReferralAltro         string   `json:"referralAltro,omitempty"`

	CanBeAccessedBy structures.Set `json:"canBeAccessedBy"`
	RegisteredBy    string         `json:"registeredBy,omitempty"`

	CreatedBy          string     `json:"createdBy,omitempty"`
	CreatedByEmail     string     `json:"createdByEmail,omitempty"`
	CreatedAt          time.Time  `json:"createdAt"`
	UpdatedBy          string     `json:"updatedBy,omitempty"`
	UpdatedByEmail     string     `json:"updatedByEmail,omitempty"`
	UpdatedByStructure string     `json:"updatedByStructure,omitempty"`
	UpdatedAt          *time.Time `json:"updatedAt,omitempty"`

	Deleted   bool       `json:"deleted,omitempty"`
	DeletedAt *time.Time `json:"deletedAt,omitempty"`
	DeletedBy string     `json:"deletedBy,omitempty"`
}

// IsDeleted reports whether the record was soft deleted. Older records
// only carry deletedAt.
func (a *Anagrafica) IsDeleted() bool {
	return a.Deleted || a.DeletedAt != nil
}

// Input is the payload of a record creation. CanBeAccessedBy may be empty,
// in which case the record is authorized for the acting structure only.
type Input struct {
	Cognome               string   `json:"cognome"`
	Nome                  string   `json:"nome"`
	Sesso                 string   `json:"sesso"`
	DataDiNascita         string   `json:"dataDiNascita,omitempty"`
	Cittadinanza          []string `json:"cittadinanza"`
	ComuneDiDomicilio     string   `json:"comuneDiDomicilio,omitempty"`
	Telefono              string   `json:"telefono,omitempty"`
	Email                 string   `json:"email,omitempty"`
	Nucleo                string   `json:"nucleo"`
	NucleoTipo            string   `json:"nucleoTipo,omitempty"`
	Figli                 *int     `json:"figli"`
	SituazioneLegale      string   `json:"situazioneLegale,omitempty"`
	SituazioneAbitativa   []string `json:"situazioneAbitativa,omitempty"`
	SituazioneLavorativa  string   `json:"situazioneLavorativa,omitempty"`
	TitoloDiStudioOrigine string   `json:"titoloDiStudioOrigine,omitempty"`
	TitoloDiStudioItalia  string   `json:"titoloDiStudioItalia,omitempty"`
	ConoscenzaItaliano    string   `json:"conoscenzaItaliano,omitempty"`
	Vulnerabilita         []string `json:"vulnerabilita,omitempty"`
	IntenzioneItalia      string   `json:"intenzioneItalia,omitempty"`
	PaeseDestinazione     string   `json:"paeseDestinazione,omitempty"`
	Referral              string   `json:"referral,omitempty"`
	ReferralAltro         string   `json:"referralAltro,omitempty"`

	CanBeAccessedBy structures.Set `json:"canBeAccessedBy"`
	RegisteredBy    string         `json:"registeredBy,omitempty"`
}

func (in *Input) record() *Anagrafica {
	return &Anagrafica{
		Cognome:               in.Cognome,
		Nome:                  in.Nome,
		Sesso:                 in.Sesso,
		DataDiNascita:         in.DataDiNascita,
		Cittadinanza:          in.Cittadinanza,
		ComuneDiDomicilio:     in.ComuneDiDomicilio,
		Telefono:              in.Telefono,
		Email:                 in.Email,
		Nucleo:                in.Nucleo,
		NucleoTipo:            in.NucleoTipo,
		Figli:                 in.Figli,
		SituazioneLegale:      in.SituazioneLegale,
		SituazioneAbitativa:   in.SituazioneAbitativa,
		SituazioneLavorativa:  in.SituazioneLavorativa,
		TitoloDiStudioOrigine: in.TitoloDiStudioOrigine,
		TitoloDiStudioItalia:  in.TitoloDiStudioItalia,
		ConoscenzaItaliano:    in.ConoscenzaItaliano,
		Vulnerabilita:         in.Vulnerabilita,
		IntenzioneItalia:      in.IntenzioneItalia,
		PaeseDestinazione:     in.PaeseDestinazione,
		Referral:              in.Referral,
		ReferralAltro:         in.ReferralAltro,
	}
}

// Attachment describes an uploaded file of a sub-record
type Attachment struct {
	Name        string `json:"nome"`
	ContentType string `json:"tipo"`
	Size        int64  `json:"dimensione"`
	Path        string `json:"path"`
}

// SubRecord holds the fields shared by accesses and events
type SubRecord struct {
	ID                 string       `json:"id"`
	AnagraficaID       string       `json:"anagraficaId"`
	Sottocategorie     []string     `json:"sottocategorie"`
	Altro              string       `json:"altro,omitempty"`
	Note               string       `json:"note,omitempty"`
	Files              []Attachment `json:"files"`
	CreatedBy          string       `json:"createdBy"`
	CreatedByEmail     string       `json:"createdByEmail,omitempty"`
	CreatedByStructure string       `json:"createdByStructure"`
	CreatedAt          time.Time    `json:"createdAt"`
	// StructureIDs is a copy of the parent's set at creation, kept for
	// listing. Access checks always use the parent record.
	StructureIDs structures.Set `json:"structureIds"`
}

// Access is a service-access sub-record ("accesso")
type Access struct {
	SubRecord
	TipoAccesso string `json:"tipoAccesso"`
}

// Event is a generic event sub-record ("evento")
type Event struct {
	SubRecord
	TipoEvento string `json:"tipoEvento"`
	DataOra    string `json:"dataOra,omitempty"`
}

// AccessInput is the payload of an access creation
type AccessInput struct {
	TipoAccesso    string   `json:"tipoAccesso"`
	Sottocategorie []string `json:"sottocategorie"`
	Altro          string   `json:"altro,omitempty"`
	Note           string   `json:"note,omitempty"`
	// StructureID is the acting structure; defaults to a structure shared
	// by the operator and the record
	StructureID string `json:"structureId,omitempty"`
}

// EventInput is the payload of an event creation
type EventInput struct {
	TipoEvento     string   `json:"tipoEvento"`
	Sottocategorie []string `json:"sottocategorie"`
	Altro          string   `json:"altro,omitempty"`
	Note           string   `json:"note,omitempty"`
	DataOra        string   `json:"dataOra,omitempty"`
	StructureID    string   `json:"structureId,omitempty"`
}
