package domain

import (
	"fmt"
	"regexp"
	"strings"
)

// Carrier identifies a shipping carrier inferred from a tracking number.
type Carrier string

const (
	CarrierChronopost   Carrier = "chronopost"
	CarrierColissimo    Carrier = "colissimo"
	CarrierMondialRelay Carrier = "mondial_relay"
	CarrierUPS          Carrier = "ups"
	CarrierDHL          Carrier = "dhl"
	CarrierDPD          Carrier = "dpd"
	// CarrierOther is the fallback when no pattern matches; the tracking link
	// degrades but nothing is ever blocked on it.
	CarrierOther Carrier = "other"
)

// CarrierDetectionResult is the derived carrier classification for a tracking
// number. TrackingURL is empty when no carrier-specific link exists.
type CarrierDetectionResult struct {
	Carrier     Carrier
	TrackingURL string
	Label       string
}

type carrierSignature struct {
	carrier     Carrier
	label       string
	pattern     *regexp.Regexp
	urlTemplate string
}

// Ordered by signature specificity; first match wins. The patterns are
// heuristic prefix/length fingerprints, so false negatives are expected and
// tolerated.
var carrierSignatures = []carrierSignature{
	{CarrierChronopost, "Chronopost", regexp.MustCompile(`^[A-Z]{2}\d{9}[A-Z]{2}$`), "https://www.chronopost.fr/tracking-no-cms/suivi-page?listeNumerosLT=%s"},
	{CarrierColissimo, "Colissimo", regexp.MustCompile(`^\d[A-Z]\d{11}$`), "https://www.laposte.fr/outils/suivre-vos-envois?code=%s"},
	{CarrierUPS, "UPS", regexp.MustCompile(`^1Z[0-9A-Z]{16}$`), "https://www.ups.com/track?tracknum=%s"},
	{CarrierMondialRelay, "Mondial Relay", regexp.MustCompile(`^\d{8}$`), "https://www.mondialrelay.fr/suivi-de-colis/?numeroExpedition=%s"},
	{CarrierDHL, "DHL", regexp.MustCompile(`^\d{10}$`), "https://www.dhl.com/fr-fr/home/tracking.html?tracking-id=%s"},
	{CarrierDPD, "DPD", regexp.MustCompile(`^\d{14}$`), "https://trace.dpd.fr/fr/trace/%s"},
}

// DetectCarrier normalises the tracking number (trim, uppercase) and matches
// it against the known carrier signatures. Unrecognised numbers yield the
// generic other-carrier result with no URL.
func DetectCarrier(trackingNumber string) CarrierDetectionResult {
	normalized := strings.ToUpper(strings.TrimSpace(trackingNumber))
	if normalized == "" {
		return CarrierDetectionResult{Carrier: CarrierOther, Label: "Other carrier"}
	}
	for _, sig := range carrierSignatures {
		if sig.pattern.MatchString(normalized) {
			return CarrierDetectionResult{
				Carrier:     sig.carrier,
				TrackingURL: fmt.Sprintf(sig.urlTemplate, normalized),
				Label:       sig.label,
			}
		}
	}
	return CarrierDetectionResult{Carrier: CarrierOther, Label: "Other carrier"}
}
