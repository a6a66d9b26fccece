// Package payload builds the calculator submission: enumerated option tables, a validated
// Submission with its cross-field rules, and a random Generator over the tables.
package payload

import "slices"

// VehicleType is the typeLicense code.
type VehicleType string

const (
	VehicleAutomobile VehicleType = "11"
	VehicleMotorcycle VehicleType = "21"
	VehicleCommercial VehicleType = "31"
	VehicleTrailer    VehicleType = "40"
	VehicleOffHighway VehicleType = "F0"
	VehicleVessel     VehicleType = "V1"
)

// VehicleTypes lists every accepted VehicleType.
var VehicleTypes = []VehicleType{
	VehicleAutomobile, VehicleMotorcycle, VehicleCommercial,
	VehicleTrailer, VehicleOffHighway, VehicleVessel,
}

func (v VehicleType) Valid() bool { return slices.Contains(VehicleTypes, v) }

// MotivePower is the primary fuel code.
type MotivePower string

const (
	MotiveGas      MotivePower = "G"
	MotiveHybrid   MotivePower = "Q"
	MotiveDiesel   MotivePower = "D"
	MotiveElectric MotivePower = "E"
	MotiveOther    MotivePower = "O"
)

var MotivePowers = []MotivePower{MotiveGas, MotiveHybrid, MotiveDiesel, MotiveElectric, MotiveOther}

func (m MotivePower) Valid() bool { return slices.Contains(MotivePowers, m) }

// SecondaryMotivePower is the secondary fuel code.
type SecondaryMotivePower string

var SecondaryMotivePowers = []SecondaryMotivePower{
	"B", // butane
	"M", // methanol
	"N", // natural gas
	"P", // propane
	"F", // flex fuel
	"R", // hydrogen
	"Y", // diesel-hybrid
}

func (m SecondaryMotivePower) Valid() bool { return slices.Contains(SecondaryMotivePowers, m) }

// Axles is the numberOfAxles code.
type Axles string

const (
	AxlesTwo         Axles = "2"
	AxlesMoreThanTwo Axles = "3"
)

var AxleOptions = []Axles{AxlesTwo, AxlesMoreThanTwo}

func (a Axles) Valid() bool { return slices.Contains(AxleOptions, a) }

// WeightType selects which weight range field applies.
type WeightType string

const (
	WeightUnladen       WeightType = "U"
	WeightGross         WeightType = "G"
	WeightCombinedGross WeightType = "C"
)

var WeightTypes = []WeightType{WeightUnladen, WeightGross, WeightCombinedGross}

func (w WeightType) Valid() bool { return slices.Contains(WeightTypes, w) }

// ElectricType is the electric vehicle weight class, sent only for electric vehicles.
type ElectricType string

var ElectricTypes = []ElectricType{
	"1000",  // under 6,000
	"6000",  // 6,000 - 9,999
	"10000", // 10,000 and over
}

func (e ElectricType) Valid() bool { return slices.Contains(ElectricTypes, e) }

// UnladenRange is an unladen weight bracket. The same brackets serve both axle counts.
type UnladenRange string

var UnladenRanges = []UnladenRange{
	"1000", "3000", "4001", "5001", "6001", "7001", "8001", "9001", "10001",
}

func (u UnladenRange) Valid() bool { return slices.Contains(UnladenRanges, u) }

// GrossRange is a gross vehicle weight bracket, A (10,001 - 15,000) through N (75,001 - 80,000).
type GrossRange string

var GrossRanges = []GrossRange{
	"A", "B", "C", "D", "E", "F", "G", "H", "I", "J", "K", "L", "M", "N",
}

func (g GrossRange) Valid() bool { return slices.Contains(GrossRanges, g) }

// AcquiredFrom is the seller category.
type AcquiredFrom string

var AcquiredFromOptions = []AcquiredFrom{
	"D", // California dealer
	"O", // out of state dealer
	"P", // private party
	"F", // family transfer
	"G", // gift
}

func (a AcquiredFrom) Valid() bool { return slices.Contains(AcquiredFromOptions, a) }

// TrailerType is sent only for trailers.
type TrailerType string

var TrailerTypes = []TrailerType{"PTI", "CCH", "CCHPT"}

func (t TrailerType) Valid() bool { return slices.Contains(TrailerTypes, t) }

// countyCodes maps every county name the form accepts to its countyCode.
var countyCodes = map[string]string{
	"Alameda": "1", "Alpine": "2", "Amador": "3", "Butte": "4",
	"Calaveras": "5", "Colusa": "6", "Contra Costa": "7",
	"Del Norte": "8", "El Dorado": "9", "Fresno": "10",
	"Glenn": "11", "Humboldt": "12", "Imperial": "13",
	"Inyo": "14", "Kern": "15", "Kings": "16", "Lake": "17",
	"Lassen": "18", "Los Angeles": "19", "Madera": "20",
	"Marin": "21", "Mariposa": "22", "Mendocino": "23",
	"Merced": "24", "Modoc": "25", "Mono": "26",
	"Monterey": "27", "Napa": "28", "Nevada": "29",
	"Orange": "30", "Placer": "31", "Plumas": "32",
	"Riverside": "33", "Sacramento": "34", "San Benito": "35",
	"San Bernardino": "36", "San Diego": "37",
	"San Francisco": "38", "San Joaquin": "39",
	"San Luis Obispo": "40", "San Mateo": "41",
	"Santa Barbara": "42", "Santa Clara": "43",
	"Santa Cruz": "44", "Shasta": "45", "Sierra": "46",
	"Siskiyou": "47", "Solano": "48", "Sonoma": "49",
	"Stanislaus": "50", "Sutter": "51", "Tehama": "52",
	"Trinity": "53", "Tulare": "54", "Tuolumne": "55",
	"Ventura": "56", "Yolo": "57", "Yuba": "58",
}

// CountyCode returns the code for a county name.
func CountyCode(county string) (string, bool) {
	code, ok := countyCodes[county]
	return code, ok
}

// Location is a consistent county, city and ZIP combination.
type Location struct {
	County    string
	CityLabel string
	CityName  string
	ZipCode   string
}

// Locations are the county/city/ZIP combinations the generator draws from.
var Locations = []Location{
	{County: "Alameda", CityLabel: "Oakland", CityName: "OAKLAND", ZipCode: "94607"},
	{County: "Butte", CityLabel: "Chico", CityName: "CHICO", ZipCode: "95926"},
	{County: "Los Angeles", CityLabel: "Los Angeles", CityName: "LOSANGELES", ZipCode: "90001"},
	{County: "Orange", CityLabel: "Anaheim", CityName: "ANAHEIM", ZipCode: "92801"},
	{County: "San Diego", CityLabel: "San Diego", CityName: "SANDIEGO", ZipCode: "92101"},
}

// Valid reports whether l is one of the known combinations.
func (l Location) Valid() bool { return slices.Contains(Locations, l) }

// CountyCode returns the code for l's county.
func (l Location) CountyCode() string {
	code, _ := CountyCode(l.County)
	return code
}
