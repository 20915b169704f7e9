package otfoutcomes

import (
	"strings"

	"github.com/labstack/gommon/log"
	"github.com/nsip/otf-outcomes/calc"
	"github.com/nsip/otf-outcomes/internal/util"
	"github.com/pkg/errors"
)

type Option func(*OtfOutcomesService) error

//
// apply all supplied options to the service
// returns any error encountered while applying the options
//
func (srvc *OtfOutcomesService) setOptions(options ...Option) error {
	for _, opt := range options {
		if err := opt(srvc); err != nil {
			return err
		}
	}
	if srvc.repo == nil {
		return errors.New("a repository (snapshot or database) must be supplied")
	}
	return nil
}

//
// the name of this service instance, auto-generated if empty
//
func Name(name string) Option {
	return func(s *OtfOutcomesService) error {
		if name != "" {
			s.serviceName = name
			return nil
		}
		s.serviceName = util.GenerateName()
		return nil
	}
}

//
// the id of this service instance, auto-generated if empty
//
func ID(id string) Option {
	return func(s *OtfOutcomesService) error {
		if id != "" {
			s.serviceID = id
			return nil
		}
		s.serviceID = util.GenerateID()
		return nil
	}
}

func Host(hostName string) Option {
	return func(s *OtfOutcomesService) error {
		if hostName != "" {
			s.serviceHost = hostName
			return nil
		}
		s.serviceHost = "localhost"
		return nil
	}
}

//
// port to listen on, if 0 an available port is assigned
//
func Port(port int) Option {
	return func(s *OtfOutcomesService) error {
		if port != 0 {
			s.servicePort = port
			return nil
		}
		p, err := util.AvailablePort()
		if err != nil {
			return err
		}
		s.servicePort = p
		return nil
	}
}

//
// the store the engine reads from; source is a description
// of where it came from, for PrintConfig
//
func Repository(repo calc.Repository, source string) Option {
	return func(s *OtfOutcomesService) error {
		if repo == nil {
			return errors.New("repository cannot be nil")
		}
		s.repo = repo
		s.source = source
		return nil
	}
}

//
// cache for outcome similarity groupings, optional
//
func GroupingCache(c calc.GroupingCache, desc string) Option {
	return func(s *OtfOutcomesService) error {
		s.cache = c
		s.cacheDesc = desc
		return nil
	}
}

//
// log level for the service and engine: debug, info, warn, error or off
//
func LogLevel(level string) Option {
	return func(s *OtfOutcomesService) error {
		lvl, err := ParseLogLevel(level)
		if err != nil {
			return err
		}
		s.logLevel = lvl
		return nil
	}
}

// ParseLogLevel maps a level name onto a gommon level; empty is info.
func ParseLogLevel(level string) (log.Lvl, error) {
	switch strings.ToLower(level) {
	case "debug":
		return log.DEBUG, nil
	case "", "info":
		return log.INFO, nil
	case "warn", "warning":
		return log.WARN, nil
	case "error":
		return log.ERROR, nil
	case "off":
		return log.OFF, nil
	}
	return log.INFO, errors.Errorf("unknown log level %q", level)
}
