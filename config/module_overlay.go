package config

const schemaModulePath = "cue.mod/module.cue"
const schemaOverlayPath = "cue.mod/pkg/ringd.dev/schema/schema.cue"

const schemaModuleContent = `module: "ringd.local/config"
language: {
    version: "v0.8.0"
}
`

// CUE files may import "ringd.dev/schema" and constrain their config
// with schema.#Config. The loader applies #Config in any case.
const schemaOverlayContent = `package schema

#Duration: =~"^-?([0-9]+(\\.[0-9]+)?(ns|us|µs|ms|s|m|h))+$" | "0"

#Config: {
    name?: string
    description?: string
    logging?: {
        level?: "trace" | "debug" | "info" | "warn" | "error" | "fatal" | "panic" | "disabled"
        format?: "json" | "text"
        loki?: {
            enabled?: bool
            url?: string
            labels?: [string]: string
        }
    }
    telemetry?: {
        enabled?: bool
        provider?: "prometheus"
        listen?: string
    }
    store?: {
        driver?: "memory" | "sqlite" | "pebble"
        path?: string
        seed?: [#Namespace]: [string]: string
    }
    settings?: {
        user_id?: int & >=0
    }
    ringer?: {
        vibration_pattern?: [...#Duration]
        vibration_repeat?: int & >=-1
        default_line?: int & >=0
    }
    filter?: {
        rule?: string
        allow_unknown?: bool
    }
    mqtt?: {
        enabled?: bool
        broker?: string
        client_id?: string
        username?: string
        password?: string
        keep_alive?: #Duration
        connect_timeout?: #Duration
        topics?: {
            events?: string
            device?: string
            commands?: string
            settings?: string
        }
        qos?: int & >=0 & <=2
    }
    hot_reload?: bool
}

#Namespace: "system" | "secure" | "global"
`
