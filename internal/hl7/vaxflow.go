package hl7

import (
	"fmt"
	"time"

	"github.com/meridian-health/hl7-reporter/internal/jurisdiction"
)

var now = time.Now

// Organization-specific sender identifiers for the vaccination flow. A fixed
// set of organizations report under their own login and administration-site
// labels; everyone else reads the jurisdiction-configured identifiers.
var (
	vaxLoginIDs = map[string]string{
		"2":   "MGW36685^Meridian Health, Inc",
		"6":   "BCJ72636^BAYSHORE A&M UNIVERSITY SHS",
		"789": "MGW36685^Meridian Health, Inc",
	}
	vaxSiteIDs = map[string]string{
		"2":   "^^^7000^^^^^Meridian Health, Inc",
		"6":   "^^^8000^^^^^BAYSHORE A&M UNIVERSITY SHS",
		"789": "^^^7000^^^^^Meridian Health, Inc",
	}
	// Organizations whose administration-route descriptions are blanked.
	vaxBlankRouteDesc = map[string]bool{
		"2": true,
		"6": true,
	}
)

// BuildVaxMessage assembles a vaccination-flow message from the
// jurisdiction's configured segment order.
func BuildVaxMessage(in BuildInput) (string, error) {
	var b []byte
	for _, seg := range in.Cfg.SegmentList {
		block, err := buildVaxSegment(seg, in)
		if err != nil {
			return "", fmt.Errorf("building %s segment: %w", seg, err)
		}
		b = append(b, block...)
	}
	return string(b), nil
}

func buildVaxSegment(seg string, in BuildInput) (string, error) {
	switch seg {
	case "MSH":
		return buildVaxMSH(in)
	case "OBX":
		return buildVaxOBX(in)
	case "ORC":
		return buildVaxORC(in)
	case "PID":
		return buildVaxPID(in)
	case "PD1":
		return buildVaxPD1(in)
	case "RXA":
		return buildVaxRXA(in)
	case "RXR":
		return buildVaxRXR(in)
	default:
		return "", fmt.Errorf("%w: %s", ErrUnknownSegment, seg)
	}
}

func vaxLoginID(orgID string, cfg *jurisdiction.Config) (string, error) {
	if id, ok := vaxLoginIDs[orgID]; ok {
		return id, nil
	}
	return cfg.Specific("login_id")
}

func vaxSiteID(orgID string, cfg *jurisdiction.Config) (string, error) {
	if id, ok := vaxSiteIDs[orgID]; ok {
		return id, nil
	}
	return cfg.Specific("site_id")
}

func buildVaxMSH(in BuildInput) (string, error) {
	cfg := in.Cfg
	v := newValues()

	login, err := vaxLoginID(in.Rec.OrgID(), cfg)
	v.resolve("login_id", login, err)
	v.specific(cfg, "msh3", "msh5", "msh6", "msh15", "msh16", "msh4_3", "msh21_1")
	v.set("message_control_id", in.Rec.MRN())
	v.set("message_timestamp", now().Format("20060102150405"))

	return v.render(vaxTemplates, "msh.tmpl")
}

func buildVaxOBX(in BuildInput) (string, error) {
	v := newValues()
	v.specific(in.Cfg, "obx2", "obx3", "obx4", "obx5", "obx6_1", "obx6_2", "obx6_3")
	v.set("vaccine_date", in.Rec.OrderField("vaccine_date"))
	return v.render(vaxTemplates, "obx.tmpl")
}

func buildVaxORC(in BuildInput) (string, error) {
	rec := in.Rec
	v := newValues()
	v.specific(in.Cfg, "orc3_2", "orc4_2")
	v.set("order_number", rec.VaccineKitID())
	v.set("message_control_id", rec.MRN())
	v.set("checkedinby", rec.OrderField("checkedinby"))
	v.set("clinician_first", rec.OrderField("clinician_first"))
	v.set("clinician_last", rec.OrderField("clinician_last"))
	return v.render(vaxTemplates, "orc.tmpl")
}

func buildVaxPID(in BuildInput) (string, error) {
	rec, cfg, master := in.Rec, in.Cfg, in.Master
	v := newValues()

	race, err := rec.OptionalPersonal("race")
	if err != nil {
		return "", err
	}
	code, err := demographicCode(master.RaceTable, race, "value", cfg, "default_race_code")
	v.resolve("patient_race", code, err)
	desc, err := demographicCode(master.RaceTable, race, "desc", cfg, "default_race_desc")
	v.resolve("patient_race_desc", desc, err)

	ethnicity, err := rec.OptionalPersonal("ethnicity")
	if err != nil {
		return "", err
	}
	code, err = demographicCode(master.EthnicityTable, ethnicity, "value", cfg, "default_ethnicity_code")
	v.resolve("patient_ethnicity", code, err)
	desc, err = demographicCode(master.EthnicityTable, ethnicity, "desc", cfg, "default_ethnicity_desc")
	v.resolve("patient_ethnicity_desc", desc, err)

	dob, err := rec.PatientDOB()
	v.resolve("patient_dob", dob, err)

	v.specific(cfg, "pid4_2", "pid4_7", "pid11_3", "pid23_3")
	v.set("patient_mrn", rec.MRN())
	v.set("patient_last", rec.PatientField("personal", "last_name"))
	v.set("patient_first", rec.PatientField("personal", "first_name"))
	v.set("patient_mi", rec.PatientField("personal", "middle_name"))
	v.set("patient_gender", rec.PatientField("personal", "gender"))
	v.set("patient_address_1", rec.PatientStreet1())
	v.set("patient_address_2", rec.PatientStreet2())
	v.set("patient_address_city", rec.PatientField("address", "city"))
	v.set("patient_address_state", rec.PatientState())
	v.set("patient_address_zip", rec.PatientPostalCode())
	v.set("patient_phone", rec.PatientPhone())

	return v.render(vaxTemplates, "pid.tmpl")
}

// buildVaxPD1 renders the protection-indicator date from the administration
// timestamp.
func buildVaxPD1(in BuildInput) (string, error) {
	v := newValues()
	raw := in.Rec.OrderField("vaccine_administered_at")
	t, err := time.Parse("2006-01-02T15:04Z", raw)
	v.resolve("Protection_Indicator", t.Format("20060102"), err)
	return v.render(vaxTemplates, "pd1.tmpl")
}

func buildVaxRXA(in BuildInput) (string, error) {
	rec := in.Rec
	v := newValues()

	site, err := vaxSiteID(rec.OrgID(), in.Cfg)
	v.resolve("site_id", site, err)
	v.specific(in.Cfg, "rxa6_3", "rxa6_4", "rxa8", "rxa6_6", "rxa22")

	v.set("procedure_date", rec.OrderField("procedure_date"))
	v.set("cvx_code", rec.OrderField("cvx_code"))
	v.set("cvx_description", rec.OrderField("cvx_description"))
	v.set("vis_description", rec.OrderField("vis_description"))
	v.set("clinician_first", rec.OrderField("clinician_first"))
	v.set("clinician_last", rec.OrderField("clinician_last"))
	v.set("lot_Number", rec.OrderField("lot_number"))
	v.set("lot_expiration_date", rec.OrderField("lot_expiration_date"))
	v.set("mfg_code", rec.OrderField("mfg_code"))
	v.set("vax_manufacturer", rec.OrderField("vax_manufacturer"))
	v.set("report_date", rec.OrderField("report_date"))

	return v.render(vaxTemplates, "rxa.tmpl")
}

func buildVaxRXR(in BuildInput) (string, error) {
	rec := in.Rec
	v := newValues()
	v.specific(in.Cfg, "rxr2_3", "rxr3_3")

	adminDesc := rec.OrderField("admin_description")
	locationDesc := rec.OrderField("location_description")
	if vaxBlankRouteDesc[rec.OrgID()] {
		adminDesc = ""
		locationDesc = ""
	}

	v.set("admin_code", rec.OrderField("admin_code"))
	v.set("admin_description", adminDesc)
	v.set("location_code", rec.OrderField("location_code"))
	v.set("location_description", locationDesc)

	return v.render(vaxTemplates, "rxr.tmpl")
}
