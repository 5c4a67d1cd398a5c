// Package domain models the municipal open-data records and guided-tour scenes
// served by the civic data tour.
//
// # Data Source
//
// Datasets are produced offline by the preprocessing step from San Francisco
// open data portals (registered business locations, recreation and park
// properties, city facilities, school directory, address points). Each
// processed file is a JSON object with a single "entries" array; see
// [ZipEntry], [Park], [Facility], [School], [AddressPoint] and
// [NeighborhoodCentroid] for the entry shapes.
//
// # Conventions
//
// ZIP codes:
//
//	Five-digit strings, e.g. "94103". User input is normalised by stripping
//	every non-digit character; anything that does not leave exactly five
//	digits is rejected (see [NormalizeZip]).
//
// Coordinates:
//
//	WGS-84 latitude/longitude as {"lat": 37.77, "lon": -122.41}. A zero value
//	in either field means "unknown" and the record is skipped by geometry
//	helpers, matching the preprocessing output for unmapped rows.
//
// Neighborhoods:
//
//	Analysis neighborhood names as published by the city, e.g.
//	"Financial District/South Beach". These are the region identifiers that
//	make up a highlight set.
//
// Distances:
//
//	Great-circle (haversine) kilometres on a 6371 km sphere. Display strings
//	use metres below 0.1 miles and miles with one decimal otherwise (see
//	[FormatDistance]).
//
// # Address Matching
//
// Address search ranks every address point against a lower-cased query:
// exact label/address match 200, prefix match 140, substring match 100, plus
// 25 when the point's ZIP appears in the query. The highest positive score
// wins; ties keep the first point in file order. See [ScoreAddressPoint].
package domain
