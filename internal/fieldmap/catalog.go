package fieldmap

import (
	"sort"

	"tripbuilder/crmsync/internal/constants"
)

// CatalogColumn is the local side of a mapping, known at build time. The remote
// field id is only learned during discovery.
type CatalogColumn struct {
	Table     string
	Column    string
	ValueType ValueType
}

// Catalog lists every remote opportunity field the engine mirrors, keyed by the
// CRM field key. Booking and member records live in the same location, so each
// remote key belongs to exactly one local table.
var Catalog = map[string]CatalogColumn{
	// Bookings
	"opportunity.destination":              {constants.TableBookings, "destination", TypeString},
	"opportunity.tripdescription":          {constants.TableBookings, "trip_description", TypeLongText},
	"opportunity.arrivaldate":              {constants.TableBookings, "arrival_date", TypeDate},
	"opportunity.returndate":               {constants.TableBookings, "return_date", TypeDate},
	"opportunity.depositdate":              {constants.TableBookings, "deposit_date", TypeDate},
	"opportunity.finalpayment":             {constants.TableBookings, "final_payment_date", TypeDate},
	"opportunity.maxpassengers":            {constants.TableBookings, "capacity", TypeInteger},
	"opportunity.passengercount":           {constants.TableBookings, "passenger_count", TypeInteger},
	"opportunity.nights":                   {constants.TableBookings, "nights_total", TypeInteger},
	"opportunity.tripid":                   {constants.TableBookings, "trip_number", TypeInteger},
	"opportunity.tripstandardlevelpricing": {constants.TableBookings, "standard_price", TypeDecimal},
	"opportunity.tripvendor":               {constants.TableBookings, "vendor_name", TypeSingleOption},
	"opportunity.vendorterms":              {constants.TableBookings, "vendor_terms", TypeLongText},
	"opportunity.travelbusinessused":       {constants.TableBookings, "travel_business_used", TypeString},
	"opportunity.travelcategory":           {constants.TableBookings, "travel_category", TypeSingleOption},
	"opportunity.lodging":                  {constants.TableBookings, "lodging", TypeString},
	"opportunity.lodgingnotes":             {constants.TableBookings, "lodging_notes", TypeLongText},
	"opportunity.internaltripdetails":      {constants.TableBookings, "internal_trip_details", TypeLongText},

	// Members
	"opportunity.tripname":                {constants.TableMembers, "booking_name", TypeString},
	"opportunity.passengerid":             {constants.TableMembers, "passenger_ref", TypeString},
	"opportunity.passengernumber":         {constants.TableMembers, "passenger_number", TypeInteger},
	"opportunity.ischild":                 {constants.TableMembers, "is_child", TypeBoolean},
	"opportunity.birthcountry":            {constants.TableMembers, "birth_country", TypeString},
	"opportunity.userroomate":             {constants.TableMembers, "roommate", TypeString},
	"opportunity.roomoccupancy":           {constants.TableMembers, "room_occupancy", TypeSingleOption},
	"opportunity.passportnumber":          {constants.TableMembers, "passport_number", TypeString},
	"opportunity.passportexpire":          {constants.TableMembers, "passport_expire", TypeDate},
	"opportunity.passportfile":            {constants.TableMembers, "passport_file", TypeString},
	"opportunity.passportcountry":         {constants.TableMembers, "passport_country", TypeString},
	"opportunity.healthstate":             {constants.TableMembers, "health_state", TypeLongText},
	"opportunity.healthmedicalinfo":       {constants.TableMembers, "health_medical_info", TypeLongText},
	"opportunity.primaryphy":              {constants.TableMembers, "primary_physician", TypeString},
	"opportunity.physicianphone":          {constants.TableMembers, "physician_phone", TypeString},
	"opportunity.medicationlist":          {constants.TableMembers, "medication_list", TypeLongText},
	"opportunity.contact1ulastname":       {constants.TableMembers, "emergency_last_name", TypeString},
	"opportunity.contact1ufirstname":      {constants.TableMembers, "emergency_first_name", TypeString},
	"opportunity.contact1urelationship":   {constants.TableMembers, "emergency_relationship", TypeString},
	"opportunity.contact1umailingaddress": {constants.TableMembers, "emergency_address", TypeString},
	"opportunity.contact1ucity":           {constants.TableMembers, "emergency_city", TypeString},
	"opportunity.contact1ustate":          {constants.TableMembers, "emergency_state", TypeString},
	"opportunity.contact1uzip":            {constants.TableMembers, "emergency_zip", TypeString},
	"opportunity.contact1uemail":          {constants.TableMembers, "emergency_email", TypeString},
	"opportunity.contact1uphone":          {constants.TableMembers, "emergency_phone", TypeString},
	"opportunity.contact1umobnumber":      {constants.TableMembers, "emergency_mobile", TypeString},
	"opportunity.formsubmitteddate":       {constants.TableMembers, "form_submitted_date", TypeDate},
	"opportunity.travelcategorylicense":   {constants.TableMembers, "travel_category_license", TypeSingleOption},
	"opportunity.passengersignature":      {constants.TableMembers, "passenger_signature", TypeString},
	"opportunity.reservation":             {constants.TableMembers, "reservation", TypeString},
	"opportunity.mou":                     {constants.TableMembers, "mou", TypeString},
	"opportunity.affidavit":               {constants.TableMembers, "affidavit", TypeString},
}

// VendorFieldKey is the single-option field whose options mirror the vendors table.
const VendorFieldKey = "opportunity.tripvendor"

// PushableColumns returns, per table, every catalog column that push sends to
// the remote. Sorted for stable output.
func PushableColumns() map[string][]string {
	out := make(map[string][]string)
	for _, col := range Catalog {
		out[col.Table] = append(out[col.Table], col.Column)
	}
	for table := range out {
		sort.Strings(out[table])
	}
	return out
}

// CatalogKeyFor returns the remote key of a local column, if catalogued.
func CatalogKeyFor(table, column string) (string, bool) {
	for key, col := range Catalog {
		if col.Table == table && col.Column == column {
			return key, true
		}
	}
	return "", false
}

// EntriesFromCatalog builds registry entries for every catalog key, using idFor
// to supply the remote field id. Keys for which idFor returns "" are skipped.
func EntriesFromCatalog(idFor func(key string) string) []Entry {
	keys := make([]string, 0, len(Catalog))
	for key := range Catalog {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	entries := make([]Entry, 0, len(keys))
	for _, key := range keys {
		id := idFor(key)
		if id == "" {
			continue
		}
		col := Catalog[key]
		entries = append(entries, Entry{
			RemoteFieldID:  id,
			RemoteFieldKey: key,
			LocalTable:     col.Table,
			LocalColumn:    col.Column,
			ValueType:      col.ValueType,
		})
	}
	return entries
}
