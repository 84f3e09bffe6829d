// Package config loads selection and cross-validation settings from a YAML
// file with PROJPRED_ environment overrides, e.g.
//
//	search:
//	  method: l1
//	  nv_max: 10
//	validation:
//	  method: kfold
//	  k: 10
//	cache:
//	  compression: zstd
//
// with PROJPRED_SEARCH_NV_MAX=5 taking precedence over the file.
package config
