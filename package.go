//
// web service over the outcome calculation engine in calc.
// given course data (a json snapshot or the course management
// database) it reports per-course outcome results, institution-wide
// program outcome averages, similar outcomes across courses and
// the achievement level any score falls in.
// the service is read-only; it never writes course data.
//
package otfoutcomes
