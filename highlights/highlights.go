// Package highlights defines the canonical record shapes for the daily drug
// highlight board and the normalization rules that reconcile the historical
// storage shapes into them.
package highlights

// InfoWithReference is a field value plus its supporting source links.
type InfoWithReference struct {
	Value      string   `json:"value" dynamodbav:"value"`
	References []string `json:"references" dynamodbav:"references"`
}

// DrugHighlight is one drug's full record for a given day. Scalar fields hold
// display strings; offLabelUse keeps its reference list because it is the most
// citation-sensitive field. The dynamodbav tags mirror the json tags so the
// stored attribute names match what the normalizer reads back.
type DrugHighlight struct {
	ID                    string            `json:"id" dynamodbav:"id"`
	DrugName              string            `json:"drugName" dynamodbav:"drugName"`
	DrugClass             string            `json:"drugClass" dynamodbav:"drugClass"`
	Mechanism             string            `json:"mechanism" dynamodbav:"mechanism"`
	Uses                  string            `json:"uses" dynamodbav:"uses"`
	SideEffects           string            `json:"sideEffects" dynamodbav:"sideEffects"`
	RouteOfAdministration string            `json:"routeOfAdministration" dynamodbav:"routeOfAdministration"`
	Dose                  string            `json:"dose" dynamodbav:"dose"`
	DosageForm            string            `json:"dosageForm" dynamodbav:"dosageForm"`
	HalfLife              string            `json:"halfLife" dynamodbav:"halfLife"`
	ClinicalUses          string            `json:"clinicalUses" dynamodbav:"clinicalUses"`
	Contraindication      string            `json:"contraindication" dynamodbav:"contraindication"`
	OffLabelUse           InfoWithReference `json:"offLabelUse" dynamodbav:"offLabelUse"`
	FunFact               string            `json:"funFact" dynamodbav:"funFact"`
}

// DailyHighlight is the stored document for one calendar date. Date is both
// the storage key and the in-memory identifier; the normalizer overwrites it
// with the external key on every read and write.
type DailyHighlight struct {
	Date  string          `json:"date"`
	Drugs []DrugHighlight `json:"drugs"`
}

// QuizQuestion is a generated multiple-choice question. Options always holds
// exactly four entries and CorrectAnswer is one of them.
type QuizQuestion struct {
	Question      string   `json:"question"`
	Options       []string `json:"options"`
	CorrectAnswer string   `json:"correctAnswer"`
}
