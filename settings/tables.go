package settings

// Keys read by the ring arbiter.
const (
	KeyIncreasingRing            = "increasing_ring"
	KeyIncreasingRingStartVolume = "increasing_ring_start_vol"
	KeyIncreasingRingRampUpTime  = "increasing_ring_ramp_up_time"
	KeyVibrateWhenRinging        = "vibrate_when_ringing"
	KeyTheaterModeOn             = "theater_mode_on"
	KeyDevForceShowNavbar        = "dev_force_show_navbar"
)

var (
	boolean     = Boolean()
	color       = Color()
	nonNegative = NonNegativeInt()
	alwaysValid = AlwaysValid()
)

var navButtonValues = []string{
	"empty", "home", "back", "search", "recent", "menu0", "menu1", "menu2",
	"dpad_left", "dpad_right", "power", "notifications", "torch", "camera",
	"screenshot", "expand", "app_picker",
}

var navButtons = DelimitedList(navButtonValues, "|", true)

var secureValidators = map[string]Validator{
	"protected_components":         ComponentList("|", true),
	"protected_component_managers": ComponentList("|", false),
}

var systemValidators = map[string]Validator{
	"notification_play_queue":                  boolean,
	"high_touch_sensitivity_enable":            boolean,
	"system_profiles_enabled":                  boolean,
	"status_bar_clock":                         IntRange(0, 3),
	"status_bar_am_pm":                         IntRange(0, 2),
	"status_bar_battery_style":                 DiscreteSet("0", "2", "3", "4", "5", "6"),
	"status_bar_show_battery_percent":          IntRange(0, 2),
	KeyIncreasingRing:                          boolean,
	KeyIncreasingRingStartVolume:               FloatRange(0, 1),
	KeyIncreasingRingRampUpTime:                IntRange(5, 60),
	"volume_adjust_sounds_enabled":             boolean,
	"nav_buttons":                              navButtons,
	"volume_keys_control_ring_stream":          boolean,
	"navigation_bar_menu_arrow_keys":           boolean,
	"key_home_long_press_action":               IntRange(0, 8),
	"key_home_double_tap_action":               IntRange(0, 8),
	"back_wake_screen":                         boolean,
	"menu_wake_screen":                         boolean,
	"volume_wake_screen":                       boolean,
	"key_menu_action":                          IntRange(0, 8),
	"key_menu_long_press_action":               IntRange(0, 8),
	"key_assist_action":                        IntRange(0, 8),
	"key_assist_long_press_action":             IntRange(0, 8),
	"key_app_switch_action":                    IntRange(0, 8),
	"key_app_switch_long_press_action":         IntRange(0, 8),
	"home_wake_screen":                         boolean,
	"assist_wake_screen":                       boolean,
	"app_switch_wake_screen":                   boolean,
	"camera_wake_screen":                       boolean,
	"camera_sleep_on_release":                  boolean,
	"camera_launch":                            boolean,
	"swap_volume_keys_on_rotation":             IntRange(0, 2),
	"battery_light_enabled":                    boolean,
	"battery_light_pulse":                      boolean,
	"battery_light_low_color":                  color,
	"battery_light_medium_color":               color,
	"battery_light_full_color":                 color,
	"enable_mwi_notification":                  boolean,
	"proximity_on_wake":                        boolean,
	"enable_forward_lookup":                    boolean,
	"enable_people_lookup":                     boolean,
	"enable_reverse_lookup":                    boolean,
	"forward_lookup_provider":                  alwaysValid,
	"people_lookup_provider":                   alwaysValid,
	"reverse_lookup_provider":                  alwaysValid,
	"dialer_opencnam_account_sid":              alwaysValid,
	"dialer_opencnam_auth_token":               alwaysValid,
	"display_temperature_day":                  IntRange(1000, 10000),
	"display_temperature_night":                IntRange(1000, 10000),
	"display_temperature_mode":                 IntRange(0, 4),
	"display_auto_contrast":                    boolean,
	"display_auto_outdoor_mode":                boolean,
	"display_low_power":                        boolean,
	"display_color_enhance":                    boolean,
	"display_color_adjustment":                 FloatList(3, " ", 0, 1),
	"live_display_hinted":                      IntRange(-3, 1),
	"double_tap_sleep_gesture":                 boolean,
	"status_bar_show_weather":                  boolean,
	"recents_show_search_bar":                  boolean,
	"navigation_bar_left":                      boolean,
	"t9_search_input_locale":                   Locale(),
	"bluetooth_accept_all_files":               boolean,
	"lockscreen_scramble_pin_layout":           boolean,
	"lockscreen_rotation":                      boolean,
	"show_alarm_icon":                          boolean,
	"show_next_alarm":                          boolean,
	"safe_headset_volume":                      boolean,
	"stream_volume_steps_changed":              boolean,
	"status_bar_ime_switcher":                  boolean,
	"qs_quick_pulldown":                        IntRange(0, 2),
	"qs_show_brightness_slider":                boolean,
	"status_bar_brightness_control":            boolean,
	"volbtn_music_controls":                    boolean,
	"edge_service_for_gestures":                boolean,
	"status_bar_notif_count":                   boolean,
	"call_recording_format":                    IntRange(0, 1),
	"notification_light_brightness_level":      IntRange(1, 255),
	"notification_light_multiple_leds_enable":  boolean,
	"notification_light_screen_on_enable":      boolean,
	"notification_light_pulse_default_color":   color,
	"notification_light_pulse_default_led_on":  nonNegative,
	"notification_light_pulse_default_led_off": nonNegative,
	"notification_light_pulse_call_color":      color,
	"notification_light_pulse_call_led_on":     nonNegative,
	"notification_light_pulse_call_led_off":    nonNegative,
	"notification_light_pulse_vmail_color":     color,
	"notification_light_pulse_vmail_led_on":    nonNegative,
	"notification_light_pulse_vmail_led_off":   nonNegative,
	"notification_light_pulse_custom_enable":   boolean,
	"notification_light_pulse_custom_values":   PulseValues(),
	"notification_light_color_auto":            boolean,
	"headset_connect_player":                   boolean,
	"allow_lights":                             boolean,
	"zen_priority_allow_lights":                boolean,
	"touchscreen_gesture_haptic_feedback":      boolean,
	"heads_up_custom_values":                   alwaysValid,
	"heads_up_blacklist_values":                alwaysValid,
	"heads_up_whitelist_values":                alwaysValid,
	"___magical_test_passing_enabler":          alwaysValid,
}

var legacyKeys = map[Namespace][]string{
	NamespaceGlobal: {
		"wake_when_plugged_or_unplugged",
		"power_notifications_vibrate",
		"power_notifications_ringtone",
		"zen_disable_ducking_during_media_playback",
		"wifi_auto_priority",
	},
	NamespaceSecure: {
		"advanced_mode",
		"button_backlight_timeout",
		"button_brightness",
		"default_theme_components",
		"default_theme_package",
		"dev_force_show_navbar",
		"keyboard_brightness",
		"power_menu_actions",
		"stats_collection",
		"qs_show_brightness_slider",
		"sysui_qs_tiles",
		"sysui_qs_main_tiles",
		"navigation_ring_targets_0",
		"navigation_ring_targets_1",
		"navigation_ring_targets_2",
		"recents_long_press_activity",
		"adb_notify",
		"adb_port",
		"device_hostname",
		"kill_app_longpress_back",
		"protected_components",
		"live_display_color_matrix",
		"advanced_reboot",
		"theme_prev_boot_api_level",
		"lockscreen_target_actions",
		"ring_home_button_behavior",
		"privacy_guard_default",
		"privacy_guard_notification",
		"development_shortcut",
		"performance_profile",
		"app_perf_profiles_enabled",
		"qs_location_advanced",
		"lockscreen_visualizer",
		"lock_screen_pass_to_security_view",
	},
	NamespaceSystem: {
		"nav_buttons",
		"key_home_long_press_action",
		"key_home_double_tap_action",
		"back_wake_screen",
		"menu_wake_screen",
		"volume_wake_screen",
		"key_menu_action",
		"key_menu_long_press_action",
		"key_assist_action",
		"key_assist_long_press_action",
		"key_app_switch_action",
		"key_app_switch_long_press_action",
		"home_wake_screen",
		"assist_wake_screen",
		"app_switch_wake_screen",
		"camera_wake_screen",
		"camera_sleep_on_release",
		"camera_launch",
		"swap_volume_keys_on_rotation",
		"battery_light_enabled",
		"battery_light_pulse",
		"battery_light_low_color",
		"battery_light_medium_color",
		"battery_light_full_color",
		"enable_mwi_notification",
		"proximity_on_wake",
		"enable_forward_lookup",
		"enable_people_lookup",
		"enable_reverse_lookup",
		"forward_lookup_provider",
		"people_lookup_provider",
		"reverse_lookup_provider",
		"dialer_opencnam_account_sid",
		"dialer_opencnam_auth_token",
		"display_temperature_day",
		"display_temperature_night",
		"display_temperature_mode",
		"display_auto_outdoor_mode",
		"display_low_power",
		"display_color_enhance",
		"display_color_adjustment",
		"live_display_hinted",
		"double_tap_sleep_gesture",
		"status_bar_show_weather",
		"recents_show_search_bar",
		"navigation_bar_left",
		"t9_search_input_locale",
		"bluetooth_accept_all_files",
		"lockscreen_scramble_pin_layout",
		"show_alarm_icon",
		"show_next_alarm",
		"safe_headset_volume",
		"stream_volume_steps_changed",
		"status_bar_ime_switcher",
		"qs_show_brightness_slider",
		"status_bar_brightness_control",
		"volbtn_music_controls",
		"swap_volume_keys_on_rotation",
		"edge_service_for_gestures",
		"status_bar_notif_count",
		"call_recording_format",
		"notification_light_brightness_level",
		"notification_light_multiple_leds_enable",
		"notification_light_screen_on_enable",
		"notification_light_pulse_default_color",
		"notification_light_pulse_default_led_on",
		"notification_light_pulse_default_led_off",
		"notification_light_pulse_call_color",
		"notification_light_pulse_call_led_on",
		"notification_light_pulse_call_led_off",
		"notification_light_pulse_vmail_color",
		"notification_light_pulse_vmail_led_on",
		"notification_light_pulse_vmail_led_off",
		"notification_light_pulse_custom_enable",
		"notification_light_pulse_custom_values",
		"qs_quick_pulldown",
		"volume_adjust_sounds_enabled",
		"system_profiles_enabled",
		"increasing_ring",
		"increasing_ring_start_vol",
		"increasing_ring_ramp_up_time",
		"status_bar_clock",
		"status_bar_am_pm",
		"status_bar_battery_style",
		"status_bar_show_battery_percent",
		"volume_keys_control_ring_stream",
		"navigation_bar_menu_arrow_keys",
		"headset_connect_player",
		"allow_lights",
		"touchscreen_gesture_haptic_feedback",
	},
}

// moves maps a namespace to the keys that left it and the namespace that now
// owns each of them.
var moves = map[Namespace]map[string]Namespace{
	NamespaceSystem: {KeyDevForceShowNavbar: NamespaceSecure},
	NamespaceSecure: {KeyDevForceShowNavbar: NamespaceGlobal},
}

var validators = map[Namespace]map[string]Validator{
	NamespaceSecure: secureValidators,
	NamespaceSystem: systemValidators,
}

// LookupValidator returns the validator registered for key in ns.
func LookupValidator(ns Namespace, key string) (Validator, bool) {
	v, ok := validators[ns][key]
	return v, ok
}

// LegacyKeys lists the keys each namespace inherited from the platform
// settings tables. The returned slice is a copy.
func LegacyKeys(ns Namespace) []string {
	return append([]string(nil), legacyKeys[ns]...)
}

// MovedTo reports the namespace that now owns key when it moved out of ns.
func MovedTo(ns Namespace, key string) (Namespace, bool) {
	target, ok := moves[ns][key]
	return target, ok
}
