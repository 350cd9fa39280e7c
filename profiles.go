package swcache

import "net/url"

// StaticAssets is the precache manifest of the cache-first profile.
var StaticAssets = []string{
	"/",
	"/static/css/style.css",
	"/static/js/main.js",
	"/static/vendor/bootstrap/bootstrap.min.css",
	"/static/vendor/bootstrap/bootstrap.bundle.min.js",
	"/static/vendor/jquery/jquery-3.6.0.min.js",
	"/static/vendor/fontawesome/all.min.css",
	"/static/img/logo.png",
	"/static/android-chrome-192x192.png",
	"/static/android-chrome-512x512.png",
	"/static/apple-touch-icon.png",
	"/static/site.webmanifest",
}

// ProfileCacheFirst serves assets from the cache and keeps account pages
// and listings on the network.
func ProfileCacheFirst(origin *url.URL) Config {
	return Config{
		Origin:   origin,
		Prefix:   "ranksewa-static",
		Version:  "v3",
		Precache: append([]string(nil), StaticAssets...),
		Routes: Routes{
			AlwaysFresh: []Rule{PathPrefix("/api/"), QueryOn("/doctors")},
			AlwaysNetwork: []Rule{
				PathPrefix("/doctors"),
				PathPrefix("/doctor/"),
				PathPrefix("/profile"),
				PathPrefix("/admin"),
			},
		},
		DefaultStrategy: StrategyCacheFirst,
		OfflinePath:     "/",
		StaticPrefixes:  []string{"/static/"},
	}
}

// ProfileNetworkFirst prefers fresh content, caching static files and HTML
// pages for offline use, with the home page as the offline document.
func ProfileNetworkFirst(origin *url.URL) Config {
	return Config{
		Origin:  origin,
		Prefix:  "ranksewa",
		Version: "v1",
		Precache: []string{
			"/",
			"/static/css/style.css",
			"/static/img/logo.png",
			"/static/manifest.json",
		},
		Routes: Routes{
			AlwaysFresh: []Rule{URLContains("/api/"), URLContains("/doctors?")},
		},
		DefaultStrategy:  StrategyNetworkFirst,
		NavigateFallback: true,
		OfflinePath:      "/",
		StaticPrefixes:   []string{"/static/"},
	}
}
