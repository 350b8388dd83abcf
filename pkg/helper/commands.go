package helper

// Command tokens understood by the helper. Threshold commands are prefixed
// with the battery name; the suffix encodes which value(s) to write and in
// what order.

// EndCommand writes only the end threshold. Used on batteries without a
// start-threshold control.
func EndCommand(battery string) string { return battery + "_END" }

// StartEndCommand writes the start threshold before the end threshold.
func StartEndCommand(battery string) string { return battery + "_START_END" }

// EndStartCommand writes the end threshold before the start threshold.
func EndStartCommand(battery string) string { return battery + "_END_START" }

// ForceDischargeCommand switches the charge behaviour mode; the single
// argument is the mode token ("force-discharge" or "auto").
func ForceDischargeCommand(battery string) string { return "FORCE_DISCHARGE_" + battery }
