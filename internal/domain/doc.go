// Package domain identifies meteorological events in precipitation timeseries.
//
// # Data Source
//
// Station data comes from three networks, all read as daily accumulated
// precipitation (inches):
//
//	NRCS     SNOTEL stations via the AWDB REST API, station IDs are triplets
//	         such as "538:CO:SNTL".
//	CDEC     California Data Exchange Center, sensor 2 (PRECIPITATION,
//	         ACCUMULATED), station IDs are three letters such as "TUM".
//	MESOWEST Synoptic Data timeseries API, variable precip_accum.
//
// Accumulated precipitation is differenced into per-step precipitation
// before detection, so the value at time t is the precipitation that fell
// between the previous sample and t. The first sample of a differenced
// series is NaN.
//
// # Missing Values
//
// Missing samples are NaN. They never satisfy a threshold, they contribute
// nothing to totals, and they do not break the positional runs used for
// grouping.
//
// # Storm Delineation
//
// A storm starts at a step with at least InstantMassToStart precipitation.
// Consecutive wet steps form groups; groups are merged into one storm until
// either the dry gap to the next group exceeds HoursToStop or the storm has
// run longer than MaxStormDuration, and in both cases only once the storm
// has accumulated MinStormTotal. The final group always closes a storm.
//
// Each storm period begins one sample before its first wet step, because
// that earlier timestamp is where the accumulation began:
//
//	values  0  1  1  0  0  1  1   (daily, defaults)
//	storms  [------]  [------]
//	        Jan 1-3   Jan 5-7
//
// Defaults (see [DefaultStormParams]): 0.1 to start, 0.5 total, 24h dry to
// stop, 336h (14 days) maximum.
//
// # ID Generation
//
// Storm IDs are deterministic SHA-256 hashes of source|station|start. An
// ongoing storm keeps its ID while it grows, so downstream stores can upsert
// without coordination. See [StormID].
package domain
