package models

import "errors"

type UserRole string

const (
	UserRoleAdmin      UserRole = "admin"
	UserRoleTechnicien UserRole = "technicien"
)

func (r UserRole) IsValid() bool {
	return r == UserRoleAdmin || r == UserRoleTechnicien
}

type QuoteStatus string

const (
	QuoteStatusDraft          QuoteStatus = "brouillon"
	QuoteStatusSent           QuoteStatus = "envoye"
	QuoteStatusAccepted       QuoteStatus = "accepte"
	QuoteStatusRefused        QuoteStatus = "refuse"
	QuoteStatusOrderValidated QuoteStatus = "valide_commande"
)

type InvoiceStatus string

const (
	InvoiceStatusDraft         InvoiceStatus = "brouillon"
	InvoiceStatusSent          InvoiceStatus = "envoyee"
	InvoiceStatusPartiallyPaid InvoiceStatus = "partiellement_payee"
	InvoiceStatusPaid          InvoiceStatus = "payee"
	InvoiceStatusOverdue       InvoiceStatus = "en_retard"
	InvoiceStatusCancelled     InvoiceStatus = "annulee"
)

func (s InvoiceStatus) IsValid() bool {
	switch s {
	case InvoiceStatusDraft, InvoiceStatusSent, InvoiceStatusPartiallyPaid,
		InvoiceStatusPaid, InvoiceStatusOverdue, InvoiceStatusCancelled:
		return true
	}
	return false
}

// IsSticky reports the states payments never move an invoice out of.
func (s InvoiceStatus) IsSticky() bool {
	return s == InvoiceStatusDraft || s == InvoiceStatusCancelled
}

type PaymentMode string

const (
	PaymentModeTransfer    PaymentMode = "virement"
	PaymentModeCheque      PaymentMode = "cheque"
	PaymentModeCash        PaymentMode = "especes"
	PaymentModeCard        PaymentMode = "carte"
	PaymentModeDirectDebit PaymentMode = "prelevement"
	PaymentModeCreditNote  PaymentMode = "avoir"
)

func (m PaymentMode) IsValid() bool {
	switch m {
	case PaymentModeTransfer, PaymentModeCheque, PaymentModeCash, PaymentModeCard,
		PaymentModeDirectDebit, PaymentModeCreditNote:
		return true
	}
	return false
}

type CreditNoteStatus string

const (
	CreditNoteStatusDraft    CreditNoteStatus = "brouillon"
	CreditNoteStatusSent     CreditNoteStatus = "envoye"
	CreditNoteStatusApplied  CreditNoteStatus = "applique"
	CreditNoteStatusRefunded CreditNoteStatus = "rembourse"
)

type CreditNoteUsage string

const (
	CreditNoteUsageDeduction CreditNoteUsage = "deduction"
	CreditNoteUsageRefund    CreditNoteUsage = "remboursement"
)

func (u CreditNoteUsage) IsValid() bool {
	return u == CreditNoteUsageDeduction || u == CreditNoteUsageRefund
}

type ContractFrequency string

const (
	FrequencyWeekly      ContractFrequency = "hebdomadaire"
	FrequencySemiMonthly ContractFrequency = "bimensuel"
	FrequencyMonthly     ContractFrequency = "mensuel"
	FrequencyBimonthly   ContractFrequency = "bimestriel"
	FrequencyQuarterly   ContractFrequency = "trimestriel"
	FrequencyFourMonthly ContractFrequency = "quadrimestriel"
	FrequencySemiAnnual  ContractFrequency = "semestriel"
	FrequencyAnnual      ContractFrequency = "annuel"
)

type RenewalPolicy string

const (
	RenewalManual RenewalPolicy = "manuel"
	RenewalTacit  RenewalPolicy = "tacite"
	RenewalNone   RenewalPolicy = "aucun"
)

func (r RenewalPolicy) IsValid() bool {
	return r == RenewalManual || r == RenewalTacit || r == RenewalNone
}

type AlertType string

const (
	AlertUpcomingBilling  AlertType = "facturation_a_venir"
	AlertLatePayment      AlertType = "retard_paiement"
	AlertContractEnd      AlertType = "fin_contrat"
	AlertRevenueThreshold AlertType = "seuil_ca"
)

type EntryDirection string

const (
	EntryDirectionDebit  EntryDirection = "debit"
	EntryDirectionCredit EntryDirection = "credit"
)

type EntryStatus string

const (
	EntryStatusDraft     EntryStatus = "brouillon"
	EntryStatusValidated EntryStatus = "valide"
)

type Journal string

const (
	JournalSales     Journal = "VE"
	JournalPurchases Journal = "AC"
	JournalBank      Journal = "BQ"
	JournalMisc      Journal = "OD"
)

func (j Journal) IsValid() bool {
	switch j {
	case JournalSales, JournalPurchases, JournalBank, JournalMisc:
		return true
	}
	return false
}

type MovementType string

const (
	MovementTypeIn         MovementType = "entree"
	MovementTypeOut        MovementType = "sortie"
	MovementTypeTransfer   MovementType = "transfert"
	MovementTypeAdjustment MovementType = "ajustement"
	MovementTypeReturn     MovementType = "retour"
)

type MovementSource string

const (
	MovementSourceManual          MovementSource = "manuel"
	MovementSourceSupplierInvoice MovementSource = "facture_fournisseur"
	MovementSourceIntervention    MovementSource = "intervention"

	// MovementSourceSupplierInvoiceReversal marks the sorties compensating the receipts of a
	// supplier invoice; source_id is the invoice id.
	MovementSourceSupplierInvoiceReversal MovementSource = "extourne_facture_fournisseur"
)

type SupplierInvoiceStatus string

const (
	SupplierInvoiceStatusDraft  SupplierInvoiceStatus = "brouillon"
	SupplierInvoiceStatusPosted SupplierInvoiceStatus = "comptabilisee"
)

type EquipmentType string

const (
	EquipmentTypeVehicle EquipmentType = "vehicule"
	EquipmentTypeLift    EquipmentType = "nacelle"
	EquipmentTypeRobot   EquipmentType = "robot"
	EquipmentTypeTool    EquipmentType = "outillage"
)

type InterventionType string

const (
	InterventionTypeMaintenance InterventionType = "entretien"
	InterventionTypeRepair      InterventionType = "reparation"
	InterventionTypeVGP         InterventionType = "vgp"
	InterventionTypeCheck       InterventionType = "controle"
)

func (t InterventionType) IsValid() bool {
	switch t {
	case InterventionTypeMaintenance, InterventionTypeRepair, InterventionTypeVGP, InterventionTypeCheck:
		return true
	}
	return false
}

var ErrInvalidStatusTransition = errors.New("invalid status transition")
