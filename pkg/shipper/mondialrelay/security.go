package mondialrelay

import (
	"crypto/md5"
	"encoding/hex"
	"strconv"
	"strings"
	"unicode/utf8"
)

// Signed field orders, one per web service method. The carrier recomputes the
// hash over the same order; unused optional fields contribute an empty string.
var (
	labelSecurityFields = []string{
		"Enseigne", "ModeCol", "ModeLiv", "NDossier", "NClient",
		"Expe_Langage", "Expe_Ad1", "Expe_Ad2", "Expe_Ad3", "Expe_Ad4",
		"Expe_CP", "Expe_Ville", "Expe_Pays", "Expe_Tel1", "Expe_Tel2", "Expe_Mail",
		"Dest_Langage", "Dest_Ad1", "Dest_Ad2", "Dest_Ad3", "Dest_Ad4",
		"Dest_CP", "Dest_Ville", "Dest_Pays", "Dest_Tel1", "Dest_Tel2", "Dest_Mail",
		"Poids", "Longueur", "Taille", "NbColis",
		"CRT_Valeur", "CRT_Devise", "Exp_Valeur", "Exp_Devise",
		"COL_Rel_Pays", "COL_Rel", "LIV_Rel_Pays", "LIV_Rel",
		"TAvisage", "TReprise", "Montage", "TRDV", "Assurance", "Instructions",
	}

	tracingSecurityFields = []string{"Enseigne", "Expedition", "Langue"}

	pickupSecurityFields = []string{
		"Enseigne", "Pays", "NumPointRelais", "Ville", "CP", "Latitude", "Longitude",
		"Taille", "Poids", "Action", "DelaiEnvoi", "RayonRecherche", "TypeActivite", "NACE",
	}
)

// SecurityHash concatenates values in order, appends the private key and
// returns the uppercase hex MD5 digest.
func SecurityHash(values []string, privateKey string) string {
	var b strings.Builder
	for _, v := range values {
		b.WriteString(v)
	}
	b.WriteString(privateKey)

	sum := md5.Sum([]byte(b.String()))
	return strings.ToUpper(hex.EncodeToString(sum[:]))
}

// params is a request's field values keyed by web service parameter name.
type params map[string]string

// signed returns the values of fields in order, for hashing.
func (p params) signed(fields []string) []string {
	values := make([]string, len(fields))
	for i, f := range fields {
		values[i] = p[f]
	}
	return values
}

func labelParams(creds Credentials, req *LabelRequest) params {
	p := params{
		"Enseigne":     creds.Enseigne,
		"ModeCol":      req.CollectionMode,
		"ModeLiv":      req.DeliveryMode,
		"NDossier":     dossier(req.OrderNumber),
		"NClient":      truncate(strings.ToUpper(req.CustomerNumber), 9),
		"Poids":        strconv.FormatInt(req.WeightGrams, 10),
		"NbColis":      strconv.Itoa(max(req.ParcelCount, 1)),
		"COL_Rel_Pays": req.CollectionCountry,
		"COL_Rel":      req.CollectionPoint,
		"LIV_Rel_Pays": req.DeliveryCountry,
		"LIV_Rel":      req.DeliveryPoint,
		"Instructions": truncate(req.Instructions, 31),
	}
	party(p, "Expe_", req.Sender)
	party(p, "Dest_", req.Recipient)
	return p
}

func party(p params, prefix string, a Party) {
	lang := a.Language
	if lang == "" {
		lang = "FR"
	}
	p[prefix+"Langage"] = lang
	p[prefix+"Ad1"] = truncate(strings.ToUpper(a.Name), 32)
	p[prefix+"Ad2"] = truncate(strings.ToUpper(a.Company), 32)
	p[prefix+"Ad3"] = truncate(strings.ToUpper(a.Street), 32)
	p[prefix+"Ad4"] = truncate(strings.ToUpper(a.Street2), 32)
	p[prefix+"CP"] = a.Zip
	p[prefix+"Ville"] = truncate(strings.ToUpper(a.City), 26)
	p[prefix+"Pays"] = strings.ToUpper(a.Country)
	p[prefix+"Tel1"] = truncate(a.Phone, 15)
	p[prefix+"Tel2"] = truncate(a.Mobile, 15)
	p[prefix+"Mail"] = truncate(a.Email, 70)
}

func tracingParams(creds Credentials, req *TraceRequest) params {
	lang := req.Language
	if lang == "" {
		lang = "FR"
	}
	return params{
		"Enseigne":   creds.Enseigne,
		"Expedition": req.ExpeditionNum,
		"Langue":     lang,
	}
}

func pickupParams(creds Credentials, req *PickupSearchRequest) params {
	p := params{
		"Enseigne": creds.Enseigne,
		"Pays":     strings.ToUpper(req.Country),
		"Ville":    strings.ToUpper(req.City),
		"CP":       req.PostalCode,
	}
	if req.WeightGrams > 0 {
		p["Poids"] = strconv.FormatInt(req.WeightGrams, 10)
	}
	if req.Radius > 0 {
		p["RayonRecherche"] = strconv.Itoa(req.Radius)
	}
	return p
}

// dossier keeps the characters NDossier accepts, at most 15.
func dossier(ref string) string {
	var b strings.Builder
	for _, r := range strings.ToUpper(ref) {
		if (r >= '0' && r <= '9') || (r >= 'A' && r <= 'Z') || r == '_' || r == '-' || r == ' ' {
			b.WriteRune(r)
		}
	}
	return truncate(b.String(), 15)
}

func truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n])
}
