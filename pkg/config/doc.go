// Package config defines the gateway configuration model and its loading,
// defaulting, and validation logic.
//
// # Overview
//
// Configuration is a single YAML document loaded once at startup:
//
//	http:
//	  listenAddress: "127.0.0.1:8080"
//	serviceEndpoints:
//	  backend:
//	    url: http://localhost:7777
//	apiEndpoints:
//	  authorizedEndpoint:
//	    host: "*"
//	    paths: [/authorizedPath]
//	    scopes: [authorizedScope]
//	policies: [oauth2, expression, log, rate-limit, proxy]
//	pipelines:
//	  pipeline1:
//	    apiEndpoints: [authorizedEndpoint]
//	    policies:
//	      - policy: oauth2
//	      - policy: expression
//	        actions:
//	          - params: {script: 'req.url = req.url + "/67"'}
//	      - policy: log
//	        actions:
//	          - params: {message: "${req.url} ${req.method}"}
//	      - policy: rate-limit
//	        actions:
//	          - params: {max: 1, key: "${req.host}"}
//	      - policy: proxy
//	        actions:
//	          - params: {serviceEndpoint: backend}
//
// The loading sequence is Load -> ApplyDefaults -> Validate; environment
// variables of the form MERIDIAN_SECTION_FIELD override file values.
//
// # Ordering
//
// apiEndpoints is decoded into an ordered list that preserves YAML document
// order. Routing ties between endpoints matching the same request are
// broken by that order: the first configured endpoint wins. This is a
// documented, deterministic rule rather than incidental map iteration.
//
// # Immutability
//
// The loaded Config is treated as immutable. Components receive it by
// reference and never write to it; a config file change triggers a full
// rebuild of the engine rather than in-place mutation.
package config
