package otfoutcomes

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/gommon/log"
	"github.com/nsip/otf-outcomes/calc"
)

type OtfOutcomesService struct {
	// embedded web server to handle outcome requests
	e *echo.Echo
	// the calculation engine, shared by all handlers
	engine *calc.Engine
	// the unique name of this service when running multiple instances
	serviceName string
	// the unique id of this service when running multiple instances
	serviceID string
	// the host address this service instance is running on
	serviceHost string
	// the port that this service instance is running on
	servicePort int
	// where course data is read from
	repo   calc.Repository
	source string
	// optional grouping cache
	cache     calc.GroupingCache
	cacheDesc string
	logLevel  log.Lvl
}

//
// create a new service instance
//
func New(options ...Option) (*OtfOutcomesService, error) {

	srvc := OtfOutcomesService{logLevel: log.INFO}

	if err := srvc.setOptions(options...); err != nil {
		return nil, err
	}

	calc.SetLogLevel(srvc.logLevel)
	engineOpts := []calc.EngineOption{}
	if srvc.cache != nil {
		engineOpts = append(engineOpts, calc.WithGroupingCache(srvc.cache))
	}
	srvc.engine = calc.NewEngine(srvc.repo, engineOpts...)

	srvc.e = echo.New()
	srvc.e.HideBanner = true
	srvc.e.Logger.SetLevel(srvc.logLevel)
	// add pingable method to know we're up
	srvc.e.GET("/", func(c echo.Context) error {
		return c.JSON(http.StatusOK, "OK")
	})
	srvc.e.POST("/classify", srvc.buildClassifyHandler())
	srvc.e.GET("/courses/:id/result", srvc.buildCourseResultHandler())
	srvc.e.POST("/cross-course", srvc.buildCrossCourseHandler())
	srvc.e.GET("/outcome-groups", srvc.buildOutcomeGroupsHandler())
	srvc.e.POST("/outcome-groups/average", srvc.buildGroupAverageHandler())

	return &srvc, nil
}

//
// start the service running
//
func (s *OtfOutcomesService) Start() {

	address := fmt.Sprintf("%s:%d", s.serviceHost, s.servicePort)
	go func(addr string) {
		if err := s.e.Start(addr); err != nil && err != http.ErrServerClosed {
			s.e.Logger.Info("error starting server: ", err, ", shutting down...")
			// attempt clean shutdown by raising sig int
			p, _ := os.FindProcess(os.Getpid())
			p.Signal(os.Interrupt)
		}
	}(address)

}

//
// shut the server down gracefully
//
func (s *OtfOutcomesService) Shutdown() {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := s.e.Shutdown(ctx); err != nil {
		fmt.Println("could not shut down server cleanly: ", err)
		s.e.Logger.Fatal(err)
	}

}

func (s *OtfOutcomesService) PrintConfig() {

	fmt.Println("\n\tOTF-Outcomes Service Configuration")
	fmt.Println("\t------------------------------------")

	s.printID()
	s.printStoreConfig()

}

func (s *OtfOutcomesService) printID() {
	fmt.Println("\tservice name:\t\t", s.serviceName)
	fmt.Println("\tservice ID:\t\t", s.serviceID)
	fmt.Println("\tservice host:\t\t", s.serviceHost)
	fmt.Println("\tservice port:\t\t", s.servicePort)
}

func (s *OtfOutcomesService) printStoreConfig() {
	fmt.Println("\tcourse data:\t\t", s.source)
	cache := s.cacheDesc
	if s.cache == nil {
		cache = "none"
	}
	fmt.Println("\tgrouping cache:\t\t", cache)
	fmt.Println("\tlog level:\t\t", logLevelName(s.logLevel))
	fmt.Println()
}

func logLevelName(l log.Lvl) string {
	switch l {
	case log.DEBUG:
		return "debug"
	case log.WARN:
		return "warn"
	case log.ERROR:
		return "error"
	case log.OFF:
		return "off"
	}
	return "info"
}
