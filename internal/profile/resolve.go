package profile

// Merge combines two values with overlay taking precedence. Maps merge per
// key recursively; any other overlay kind replaces the base wholesale. A null
// overlay leaves the base untouched, so absent layers cost nothing.
func Merge(base, overlay Value) Value {
	if overlay.IsNull() {
		return base
	}
	if base.Kind() != KindMap || overlay.Kind() != KindMap {
		return overlay
	}

	merged := make(map[string]Value, len(base.m)+len(overlay.m))
	for key, elem := range base.m {
		merged[key] = elem
	}
	for key, elem := range overlay.m {
		merged[key] = Merge(merged[key], elem)
	}
	return Value{kind: KindMap, m: merged}
}

// Resolve applies the fixed precedence order: user default config, then
// template config, then the recording's persisted manual overrides, then the
// runtime-only override of the current invocation. Pure; callers decide
// separately whether the runtime override is persisted back onto the
// recording.
func Resolve(user, template, recording, runtime Value) Value {
	result := user
	result = Merge(result, template)
	result = Merge(result, recording)
	result = Merge(result, runtime)
	return result
}
