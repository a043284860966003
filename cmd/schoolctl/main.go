package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/pmaschool/school-admin-go/internal/cache"
	"github.com/pmaschool/school-admin-go/internal/config"
	"github.com/pmaschool/school-admin-go/internal/odoo"
	"github.com/pmaschool/school-admin-go/internal/redis"
	"github.com/pmaschool/school-admin-go/internal/school"
	"github.com/pmaschool/school-admin-go/internal/session"
)

const usage = `schoolctl - school administration over the Odoo backend

Usage:
  schoolctl <command> [flags]

Commands:
  login       authenticate and persist the session
  logout      destroy the stored session
  whoami      show the authenticated user
  status      check backend reachability and session state
  dashboard   current school year overview
  sections    list register sections
  subjects    list register subjects
  years       list school years
  evaluations list evaluations of the current year
  professors  list professors of the current year
  students    list student enrollments of the current year
  search      search a collection by name
  counts      per-level and per-state counters
`

func main() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}
	if err := cfg.Validate(); err != nil {
		log.Fatal().Err(err).Msg("invalid config")
	}
	setLogLevel(cfg.LogLevel)

	app, err := newApp(cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize")
	}
	defer app.close()

	ctx := context.Background()
	if err := app.run(ctx, os.Args[1], os.Args[2:]); err != nil {
		log.Fatal().Err(err).Msg(os.Args[1] + " failed")
	}
}

type app struct {
	cfg     *config.Config
	client  *odoo.Client
	service *school.Service
	redis   *redis.Client
	out     *tabwriter.Writer
}

func newApp(cfg *config.Config) (*app, error) {
	a := &app{
		cfg: cfg,
		out: tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0),
	}

	var store session.Store
	switch cfg.SessionBackend {
	case "redis":
		redisClient, err := redis.NewClient(cfg.RedisURL)
		if err != nil {
			return nil, err
		}
		a.redis = redisClient
		store = session.NewRedisStore(redisClient)
	default:
		path, err := cfg.SessionFilePath()
		if err != nil {
			return nil, err
		}
		store = session.NewFileStore(path)
	}

	sessions := session.NewManager(store, func() {
		log.Warn().Msg("session expired, run: schoolctl login")
	})

	classifier := odoo.DefaultClassifier().WithExtraExpiryMarkers(cfg.SessionExpiryMarkers...)
	a.client = odoo.NewClient(cfg.OdooHost, cfg.OdooDatabase, sessions, cfg.HTTPTimeout(), odoo.WithClassifier(classifier))
	a.service = school.NewService(a.client, cache.New(config.CacheMaxSize))
	return a, nil
}

func (a *app) close() {
	a.out.Flush()
	if a.redis != nil {
		a.redis.Close()
	}
}

func (a *app) run(ctx context.Context, command string, args []string) error {
	switch command {
	case "login":
		return a.login(ctx, args)
	case "logout":
		return a.logout(ctx)
	case "whoami":
		return a.whoami(ctx)
	case "status":
		return a.status(ctx)
	case "dashboard":
		return a.dashboard(ctx, args)
	case "sections":
		return a.sections(ctx, args)
	case "subjects":
		return a.subjects(ctx, args)
	case "years":
		return a.years(ctx, args)
	case "evaluations":
		return a.evaluations(ctx, args)
	case "professors":
		return a.professors(ctx, args)
	case "students":
		return a.students(ctx, args)
	case "search":
		return a.search(ctx, args)
	case "counts":
		return a.counts(ctx)
	case "help", "-h", "--help":
		fmt.Fprint(os.Stderr, usage)
		return nil
	default:
		fmt.Fprint(os.Stderr, usage)
		return fmt.Errorf("unknown command %q", command)
	}
}

func (a *app) login(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("login", flag.ExitOnError)
	username := fs.String("u", "", "username")
	password := fs.String("p", "", "password (or ODOO_PASSWORD)")
	fs.Parse(args)

	if *password == "" {
		*password = os.Getenv("ODOO_PASSWORD")
	}
	if *username == "" || *password == "" {
		return fmt.Errorf("username and password are required")
	}

	result, err := a.client.Authenticate(ctx, *username, *password)
	if err != nil {
		return err
	}
	fmt.Printf("logged in as %s (uid %d) on %s\n", result.Info.Name, result.Info.UID, result.Info.DB)
	return nil
}

func (a *app) logout(ctx context.Context) error {
	if err := a.client.DestroySession(ctx); err != nil {
		return err
	}
	fmt.Println("logged out")
	return nil
}

func (a *app) whoami(ctx context.Context) error {
	info, err := a.client.VerifySession(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(a.out, "name\t%s\n", info.Name)
	fmt.Fprintf(a.out, "username\t%s\n", info.Username)
	fmt.Fprintf(a.out, "uid\t%d\n", info.UID)
	fmt.Fprintf(a.out, "database\t%s\n", info.DB)
	return nil
}

func (a *app) status(ctx context.Context) error {
	fmt.Fprintf(a.out, "host\t%s\n", a.cfg.OdooHost)
	fmt.Fprintf(a.out, "database\t%s\n", a.cfg.OdooDatabase)

	if !a.client.CheckConnection(ctx) {
		fmt.Fprintf(a.out, "connection\tunreachable\n")
		return nil
	}
	fmt.Fprintf(a.out, "connection\tok\n")

	if databases, err := a.client.ListDatabases(ctx); err == nil {
		fmt.Fprintf(a.out, "databases\t%s\n", strings.Join(databases, ", "))
	}

	info, err := a.client.VerifySession(ctx)
	if err != nil {
		fmt.Fprintf(a.out, "session\tnone (%s)\n", err)
		return nil
	}
	fmt.Fprintf(a.out, "session\tactive (%s)\n", info.Username)

	stats := a.service.CacheStats()
	fmt.Fprintf(a.out, "cache\t%d/%d entries\n", stats.Size, stats.MaxSize)
	return nil
}

func (a *app) dashboard(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("dashboard", flag.ExitOnError)
	light := fs.Bool("light", false, "skip the widget payloads")
	fs.Parse(args)

	var data *school.DashboardData
	if *light {
		data = a.service.LoadDashboardLight(ctx, true)
	} else {
		data = a.service.LoadDashboard(ctx, true)
	}
	if data == nil {
		return fmt.Errorf("no current school year")
	}

	fmt.Fprintf(a.out, "year\t%s (%s)\n", data.SchoolYear.Name, data.SchoolYear.State)
	if data.SchoolYear.LapsoDisplay != "" {
		fmt.Fprintf(a.out, "lapso\t%s\n", data.SchoolYear.LapsoDisplay)
	}
	fmt.Fprintf(a.out, "students\t%d (%d approved)\n", data.KPIs.TotalStudents, data.KPIs.ApprovedStudents)
	fmt.Fprintf(a.out, "sections\t%d\n", data.KPIs.TotalSections)
	fmt.Fprintf(a.out, "professors\t%d\n", data.KPIs.TotalProfessors)
	fmt.Fprintf(a.out, "by level\tpre %d, primaria %d, media %d, tecnico %d\n",
		data.StudentsByLevel.Pre, data.StudentsByLevel.Primary, data.StudentsByLevel.Secundary, data.StudentsByLevel.Tecnico)

	if data.ApprovalRate != nil {
		fmt.Fprintf(a.out, "approval\t%.1f%% (%d/%d)\n", data.ApprovalRate.Rate, data.ApprovalRate.Approved, data.ApprovalRate.Total)
	}
	if data.PerformanceByLevel != nil {
		for _, level := range data.PerformanceByLevel.Levels {
			fmt.Fprintf(a.out, "%s\tavg %.2f, %d/%d approved\n", level.Name, level.Average, level.ApprovedStudents, level.TotalStudents)
		}
	}
	return nil
}

func (a *app) sections(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("sections", flag.ExitOnError)
	sectionType := fs.String("type", "", "filter by level (pre, primary, secundary)")
	enrolled := fs.Bool("enrolled", false, "list year-bound sections instead of the register")
	fs.Parse(args)

	if *enrolled {
		for _, s := range a.service.LoadCurrentEnrolledSections(ctx, true) {
			fmt.Fprintf(a.out, "%d\t%s\t%s\t%d students\n", s.ID, s.Name, school.SectionTypeLabels[s.Type], s.StudentsCount)
		}
		return nil
	}

	var sections []school.Section
	if *sectionType != "" {
		sections = a.service.LoadSectionsByType(ctx, *sectionType, true)
	} else {
		sections = a.service.LoadSections(ctx, true)
	}
	for _, s := range sections {
		fmt.Fprintf(a.out, "%d\t%s\t%s\n", s.ID, s.Name, school.SectionTypeLabels[s.Type])
	}
	return nil
}

func (a *app) subjects(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("subjects", flag.ExitOnError)
	id := fs.Int64("id", 0, "show one subject with its sections and staff")
	fs.Parse(args)

	if *id != 0 {
		details := a.service.LoadSubjectByID(ctx, *id)
		if details == nil {
			return fmt.Errorf("subject %d not found", *id)
		}
		fmt.Fprintf(a.out, "subject\t%s\n", details.Name)
		for _, s := range details.Sections {
			fmt.Fprintf(a.out, "section\t%s\t%s\n", s.Name, school.SectionTypeLabels[s.Type])
		}
		for _, p := range details.Professors {
			fmt.Fprintf(a.out, "professor\t%s\n", p.Name)
		}
		return nil
	}

	for _, s := range a.service.LoadSubjects(ctx, true) {
		fmt.Fprintf(a.out, "%d\t%s\t%d sections\t%d professors\n", s.ID, s.Name, s.SectionsCount, s.ProfessorsCount)
	}
	return nil
}

func (a *app) years(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("years", flag.ExitOnError)
	fs.Parse(args)

	for _, y := range a.service.LoadYears(ctx, true) {
		marker := ""
		if y.Current {
			marker = "*"
		}
		fmt.Fprintf(a.out, "%d\t%s%s\t%s\t%d students\t%d sections\t%d professors\n",
			y.ID, y.Name, marker, y.State, y.KPIs.TotalStudents, y.KPIs.TotalSections, y.KPIs.TotalProfessors)
	}
	return nil
}

func (a *app) evaluations(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("evaluations", flag.ExitOnError)
	all := fs.Bool("all", false, "include past school years")
	state := fs.String("state", "", "filter by grading state (all, partial, draft)")
	fs.Parse(args)

	var evaluations []school.Evaluation
	switch {
	case *state != "":
		current := !*all
		evaluations = a.service.LoadEvaluations(ctx, school.EvaluationFilters{State: *state, Current: &current})
	case *all:
		evaluations = a.service.LoadAllEvaluations(ctx, true)
	default:
		evaluations = a.service.LoadCurrentEvaluations(ctx, true)
	}

	for _, e := range evaluations {
		subject := "-"
		if e.HasSubject {
			subject = e.Subject.Name
		}
		fmt.Fprintf(a.out, "%d\t%s\t%s\t%s\t%s\t%s\n",
			e.ID, e.EvaluationDate, e.Name, e.Section.Name, subject, school.EvaluationStateLabels[e.State])
	}
	return nil
}

func (a *app) professors(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("professors", flag.ExitOnError)
	all := fs.Bool("all", false, "include past school years")
	fs.Parse(args)

	var professors []school.Professor
	if *all {
		professors = a.service.LoadAllProfessors(ctx, true)
	} else {
		professors = a.service.LoadCurrentProfessors(ctx, true)
	}
	for _, p := range professors {
		fmt.Fprintf(a.out, "%d\t%s\t%d sections\t%d subjects\n", p.ID, p.Name, p.SectionsCount, p.SubjectsCount)
	}
	return nil
}

func (a *app) students(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("students", flag.ExitOnError)
	all := fs.Bool("all", false, "include past school years")
	fs.Parse(args)

	var enrollments []school.StudentEnrollment
	if *all {
		enrollments = a.service.LoadAllEnrollments(ctx, true)
	} else {
		enrollments = a.service.LoadCurrentEnrollments(ctx, true)
	}
	for _, e := range enrollments {
		fmt.Fprintf(a.out, "%d\t%s\t%s\t%s\n",
			e.ID, e.Student.Name, e.Section.Name, school.EnrollmentStateLabels[e.State])
	}
	return nil
}

func (a *app) search(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("search", flag.ExitOnError)
	collection := fs.String("in", "sections", "collection (sections, subjects, evaluations, professors, students)")
	fs.Parse(args)

	query := strings.Join(fs.Args(), " ")
	if query == "" {
		return fmt.Errorf("a search query is required")
	}

	switch *collection {
	case "sections":
		for _, s := range a.service.SearchEnrolledSections(ctx, query) {
			fmt.Fprintf(a.out, "%d\t%s\t%s\n", s.ID, s.Name, s.Year.Name)
		}
	case "subjects":
		for _, s := range a.service.SearchSubjects(ctx, query) {
			fmt.Fprintf(a.out, "%d\t%s\n", s.ID, s.Name)
		}
	case "evaluations":
		for _, e := range a.service.SearchEvaluations(ctx, query, true) {
			fmt.Fprintf(a.out, "%d\t%s\t%s\n", e.ID, e.Name, e.EvaluationDate)
		}
	case "professors":
		for _, p := range a.service.SearchProfessors(ctx, query) {
			fmt.Fprintf(a.out, "%d\t%s\n", p.ID, p.Name)
		}
	case "students":
		for _, e := range a.service.SearchEnrollments(ctx, query) {
			fmt.Fprintf(a.out, "%d\t%s\t%s\n", e.ID, e.Student.Name, e.Section.Name)
		}
	default:
		return fmt.Errorf("unknown collection %q", *collection)
	}
	return nil
}

func (a *app) counts(ctx context.Context) error {
	sections := a.service.EnrolledSectionsCount(ctx)
	fmt.Fprintf(a.out, "sections\tpre %d, primaria %d, media %d (total %d)\n",
		sections.Pre, sections.Primary, sections.Secundary, sections.Total)

	evaluations := a.service.EvaluationsCount(ctx)
	fmt.Fprintf(a.out, "evaluations\tcalificado %d, parcial %d, sin calificar %d (total %d)\n",
		evaluations.All, evaluations.Partial, evaluations.Draft, evaluations.Total)

	enrollments := a.service.EnrollmentsCount(ctx)
	fmt.Fprintf(a.out, "students\tinscrito %d, borrador %d, desinscrito %d (total %d)\n",
		enrollments.Done, enrollments.Draft, enrollments.Cancel, enrollments.Total)
	return nil
}

func setLogLevel(level string) {
	switch level {
	case "debug":
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	case "info":
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	case "warn":
		zerolog.SetGlobalLevel(zerolog.WarnLevel)
	case "error":
		zerolog.SetGlobalLevel(zerolog.ErrorLevel)
	default:
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}
}
