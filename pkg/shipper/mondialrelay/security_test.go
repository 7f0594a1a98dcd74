package mondialrelay

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

const testKey = "TestAPI1key"

var testCreds = Credentials{Enseigne: "BDTEST13", PrivateKey: testKey}

func TestSecurityHash_PickupSearch(t *testing.T) {
	p := pickupParams(testCreds, &PickupSearchRequest{
		Country:     "fr",
		PostalCode:  "75001",
		WeightGrams: 1000,
		Radius:      20000,
	})

	assert.Equal(t, "6DF17492591415B748F468ACD6B5C598", SecurityHash(p.signed(pickupSecurityFields), testKey))
}

func TestSecurityHash_Tracing(t *testing.T) {
	p := tracingParams(testCreds, &TraceRequest{ExpeditionNum: "31415926"})

	assert.Equal(t, []string{"BDTEST13", "31415926", "FR"}, p.signed(tracingSecurityFields))
	assert.Equal(t, "84ED99D42ACE509471AE8B7C5CA93FB1", SecurityHash(p.signed(tracingSecurityFields), testKey))
}

func TestSecurityHash_Label(t *testing.T) {
	req := &LabelRequest{
		CollectionMode: "CCC",
		DeliveryMode:   "24R",
		OrderNumber:    "ORDER42",
		Sender: Party{
			Name:    "Boutique Airsoft",
			Street:  "10 rue de Paris",
			Zip:     "75001",
			City:    "Paris",
			Country: "FR",
			Phone:   "+33102030405",
			Email:   "shop@example.com",
		},
		Recipient: Party{
			Name:    "Jean Dupont",
			Street:  "5 avenue Foch",
			Zip:     "69002",
			City:    "Lyon",
			Country: "FR",
			Phone:   "+33605040302",
			Email:   "jean@example.com",
		},
		WeightGrams:     1200,
		ParcelCount:     1,
		DeliveryCountry: "FR",
		DeliveryPoint:   "012345",
	}

	values := labelParams(testCreds, req).signed(labelSecurityFields)

	assert.Len(t, values, 45)
	assert.Equal(t,
		"BDTEST13CCC24RORDER42FRBOUTIQUE AIRSOFT10 RUE DE PARIS75001PARISFR+33102030405shop@example.com"+
			"FRJEAN DUPONT5 AVENUE FOCH69002LYONFR+33605040302jean@example.com12001FR012345",
		strings.Join(values, ""))
	assert.Equal(t, "2EB49A969F1FF2946D157E639B87F453", SecurityHash(values, testKey))
}

func TestLabelParams_Normalization(t *testing.T) {
	p := labelParams(testCreds, &LabelRequest{
		OrderNumber:    "#1712-ab/cd.ef-0123456789",
		CustomerNumber: "customer-number-long",
		Recipient: Party{
			Name: strings.Repeat("x", 40),
			City: strings.Repeat("y", 30),
		},
	})

	assert.Equal(t, "1712-ABCDEF-012", p["NDossier"])
	assert.Equal(t, "CUSTOMER-", p["NClient"])
	assert.Equal(t, "1", p["NbColis"])
	assert.Equal(t, "FR", p["Dest_Langage"])
	assert.Len(t, p["Dest_Ad1"], 32)
	assert.Len(t, p["Dest_Ville"], 26)
}

func TestBuildEnvelope_OrderAndEscaping(t *testing.T) {
	p := labelParams(testCreds, &LabelRequest{
		OrderNumber: "A1",
		Sender:      Party{Name: "Smith & Sons"},
	})
	p["Texte"] = "fragile"

	body, err := buildEnvelope("WSI2_CreationEtiquette", labelSecurityFields, p, testKey, "Texte")
	assert.NoError(t, err)

	xml := string(body)
	assert.Contains(t, xml, "<Expe_Ad1>SMITH &amp; SONS</Expe_Ad1>")

	instructions := strings.Index(xml, "<Instructions>")
	security := strings.Index(xml, "<Security>")
	texte := strings.Index(xml, "<Texte>")
	assert.True(t, instructions < security && security < texte)
}
