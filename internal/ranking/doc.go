// Package ranking turns a city's candidate items into a personalized,
// explainable, diversified feed for one user.
//
// The pipeline for a request is:
//
//	hard filters -> score -> feedback adjustment -> view decay
//	  -> page assembly (diversity cap + exploration slots)
//
// Everything here is pure: the caller supplies the candidates, the user's
// profile and history, and the current time. Given the same Input a Ranker
// always produces the same Result.
//
// Basic usage:
//
//	cfg, err := ranking.LoadCalibration("configs/ranking.calibration.json")
//	if err != nil {
//		slog.Warn("using default ranking config", "error", err)
//	}
//	ranker := ranking.NewRanker(cfg)
//	result := ranker.Rank(&ranking.Input{Now: now, PageSize: 20, ...})
//
// Calibration:
//
// Weights and tuning constants are loaded from JSON at startup and merged
// onto DefaultConfig; only non-zero values in the file override a default.
package ranking
